package ledger

import (
	"context"

	"github.com/zeromicro/go-zero/core/threading"

	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
)

// MarketAccounts 两类市场账户的原始数据；某一类查询失败不影响另一类。
// MarketSlot / CompressedSlot 为各自快照所在 slot。
type MarketAccounts struct {
	Markets        []types.AccountData
	Compressed     []types.AccountData
	MarketSlot     uint64
	CompressedSlot uint64
	MarketErr      error
	CompressedErr  error
}

func (m *MarketAccounts) All() []types.AccountData {
	all := make([]types.AccountData, 0, len(m.Markets)+len(m.Compressed))
	all = append(all, m.Markets...)
	return append(all, m.Compressed...)
}

// Failed 两类查询是否都失败
func (m *MarketAccounts) Failed() bool {
	return m.MarketErr != nil && m.CompressedErr != nil
}

// FetchMarkets 并发查询两类市场账户（按 discriminator 过滤），允许部分失败
func (c *Client) FetchMarkets(ctx context.Context, programID types.Pubkey) *MarketAccounts {
	var result MarketAccounts

	group := threading.NewRoutineGroup()
	group.RunSafe(func() {
		result.Markets, result.MarketSlot, result.MarketErr = c.GetProgramAccounts(ctx, programID, consts.MarketDiscriminator)
		if result.MarketErr != nil {
			logger.Errorf("[Ledger] 查询 Market 账户失败: %v", result.MarketErr)
		}
	})
	group.RunSafe(func() {
		result.Compressed, result.CompressedSlot, result.CompressedErr = c.GetProgramAccounts(ctx, programID, consts.LightMarketDiscriminator)
		if result.CompressedErr != nil {
			logger.Errorf("[Ledger] 查询压缩 Market 账户失败: %v", result.CompressedErr)
		}
	})
	group.Wait()

	return &result
}
