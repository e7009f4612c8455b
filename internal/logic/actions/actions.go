package actions

import (
	"context"
	"errors"
	"fmt"

	"ilowa-market-sol/internal/cache"
	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/logic/decoder"
	"ilowa-market-sol/internal/logic/instruction"
	"ilowa-market-sol/internal/logic/message"
	"ilowa-market-sol/internal/logic/session"
	"ilowa-market-sol/internal/types"
)

var ErrMarketNotFound = errors.New("actions: market account not found")

// AccountReader 读取单个账户
type AccountReader interface {
	GetAccountInfo(ctx context.Context, address types.Pubkey) (*types.AccountData, error)
}

func single(ix message.Instruction, err error) ([]message.Instruction, error) {
	if err != nil {
		return nil, err
	}
	return []message.Instruction{ix}, nil
}

// PlaceBet 下注；compressed 为 true 时走压缩市场指令
func PlaceBet(b *instruction.Builder, market types.Pubkey, amount uint64, yes, compressed bool) session.BuildFunc {
	return func(bettor types.Pubkey) ([]message.Instruction, error) {
		if compressed {
			return single(b.PlaceLightBet(bettor, market, amount, yes))
		}
		return single(b.PlaceBet(bettor, market, amount, yes))
	}
}

func ClaimWinnings(b *instruction.Builder, market types.Pubkey) session.BuildFunc {
	return func(user types.Pubkey) ([]message.Instruction, error) {
		return single(b.ClaimWinnings(user, market))
	}
}

func ResolveMarket(b *instruction.Builder, market types.Pubkey, outcome bool) session.BuildFunc {
	return func(resolver types.Pubkey) ([]message.Instruction, error) {
		return single(b.ResolveMarket(resolver, market, outcome))
	}
}

// CreateMarket 创建明文市场；market 地址依赖创建者，签名者变化重建时 out 随之更新
func CreateMarket(b *instruction.Builder, args instruction.CreateMarketArgs, out *types.Pubkey) session.BuildFunc {
	return func(creator types.Pubkey) ([]message.Instruction, error) {
		ix, market, err := b.CreateMarket(creator, args)
		if err != nil {
			return nil, err
		}
		*out = market
		return []message.Instruction{ix}, nil
	}
}

// CreateLightMarket 创建压缩市场，链上只保存问题的折叠哈希
func CreateLightMarket(b *instruction.Builder, question string, category consts.Category, region consts.Region, resolveDate int64, out *types.Pubkey) session.BuildFunc {
	return func(creator types.Pubkey) ([]message.Instruction, error) {
		if err := instruction.ValidateQuestion(question); err != nil {
			return nil, err
		}
		args := instruction.NewCreateLightMarketArgs(question, category, region, resolveDate)
		ix, market, err := b.CreateLightMarket(creator, args)
		if err != nil {
			return nil, err
		}
		*out = market
		return []message.Instruction{ix}, nil
	}
}

// RememberLightMarket 确认后读取压缩市场账户，校验哈希并保存问题原文
func RememberLightMarket(ctx context.Context, reader AccountReader, labels *cache.LabelResolver, market types.Pubkey, question string) error {
	acc, err := reader.GetAccountInfo(ctx, market)
	if err != nil {
		return fmt.Errorf("read market %s: %w", market, err)
	}
	if acc == nil {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, market)
	}

	rec, err := decoder.Decode(market, acc.Data)
	if err != nil {
		return err
	}
	if rec.Kind != decoder.KindCompressedMarket {
		return fmt.Errorf("%w: %s is %s", ErrMarketNotFound, market, rec.Kind)
	}
	return labels.Remember(ctx, rec.Compressed, question)
}
