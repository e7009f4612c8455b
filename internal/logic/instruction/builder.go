package instruction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/near/borsh-go"

	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/logic/decoder"
	"ilowa-market-sol/internal/logic/message"
	"ilowa-market-sol/internal/types"
)

var (
	ErrBetTooSmall      = errors.New("instruction: bet below minimum")
	ErrBetTooLarge      = errors.New("instruction: bet above maximum")
	ErrEmptyQuestion    = errors.New("instruction: question is empty")
	ErrQuestionTooLong  = errors.New("instruction: question exceeds 280 bytes")
	ErrInvalidExpiry    = errors.New("instruction: expiry must be in the future")
	ErrInvalidCategory  = errors.New("instruction: invalid category")
	ErrInvalidRegion    = errors.New("instruction: invalid region")
	ErrResolveDateRange = errors.New("instruction: resolve date out of range")
)

// Builder 构造预测市场程序的 Anchor 指令：8 字节指令 discriminator + borsh 参数
type Builder struct {
	programID types.Pubkey
	now       func() time.Time
}

func NewBuilder(programID types.Pubkey) *Builder {
	return &Builder{programID: programID, now: time.Now}
}

func (b *Builder) ProgramID() types.Pubkey {
	return b.programID
}

func encodeData(name string, args interface{}) ([]byte, error) {
	disc := consts.InstructionDiscriminator(name)
	if args == nil {
		return disc[:], nil
	}
	payload, err := borsh.Serialize(args)
	if err != nil {
		return nil, fmt.Errorf("borsh serialize %s args: %w", name, err)
	}
	data := make([]byte, 0, 8+len(payload))
	data = append(data, disc[:]...)
	return append(data, payload...), nil
}

func signer(key types.Pubkey) message.AccountMeta {
	return message.AccountMeta{Pubkey: key, IsSigner: true, IsWritable: true}
}

func writable(key types.Pubkey) message.AccountMeta {
	return message.AccountMeta{Pubkey: key, IsWritable: true}
}

func readonly(key types.Pubkey) message.AccountMeta {
	return message.AccountMeta{Pubkey: key}
}

// ValidateBetAmount 与链上 MIN_BET / MAX_BET 一致
func ValidateBetAmount(amount uint64) error {
	if amount < consts.MinBetLamports {
		return fmt.Errorf("%w: %d < %d lamports", ErrBetTooSmall, amount, consts.MinBetLamports)
	}
	if amount > consts.MaxBetLamports {
		return fmt.Errorf("%w: %d > %d lamports", ErrBetTooLarge, amount, consts.MaxBetLamports)
	}
	return nil
}

// SplitBetAmount 按平台费率拆分下注金额，返回 (手续费, 进入资金池的净额)
func SplitBetAmount(amount uint64) (fee, net uint64) {
	fee = amount / 10_000 * consts.PlatformFeeBps
	fee += amount % 10_000 * consts.PlatformFeeBps / 10_000
	return fee, amount - fee
}

// ValidateQuestion 非空且不超过 280 字节
func ValidateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return ErrEmptyQuestion
	}
	if len(question) > consts.MaxQuestionLen {
		return fmt.Errorf("%w: %d bytes", ErrQuestionTooLong, len(question))
	}
	return nil
}

// ===== 明文市场 =====

type CreateMarketArgs struct {
	Question  string
	Category  string
	Region    string
	IsPrivate bool
	ExpiresAt int64
}

// CreateMarket 账户：creator(signer, mut), market PDA(mut), system program
func (b *Builder) CreateMarket(creator types.Pubkey, args CreateMarketArgs) (message.Instruction, types.Pubkey, error) {
	if err := ValidateQuestion(args.Question); err != nil {
		return message.Instruction{}, types.Pubkey{}, err
	}
	if args.ExpiresAt <= b.now().Unix() {
		return message.Instruction{}, types.Pubkey{}, fmt.Errorf("%w: %d", ErrInvalidExpiry, args.ExpiresAt)
	}

	market, _, err := b.MarketPDA(creator, args.ExpiresAt)
	if err != nil {
		return message.Instruction{}, types.Pubkey{}, err
	}
	data, err := encodeData(consts.IxCreateMarket, args)
	if err != nil {
		return message.Instruction{}, types.Pubkey{}, err
	}
	return message.Instruction{
		ProgramID: b.programID,
		Accounts: []message.AccountMeta{
			signer(creator),
			writable(market),
			readonly(consts.SystemProgram),
		},
		Data: data,
	}, market, nil
}

type betArgs struct {
	Amount  uint64
	Outcome bool
}

// PlaceBet 账户：user(signer, mut), market(mut), bet PDA(mut), treasury PDA(mut), vault PDA(mut), system program
func (b *Builder) PlaceBet(user, market types.Pubkey, amount uint64, outcome bool) (message.Instruction, error) {
	if err := ValidateBetAmount(amount); err != nil {
		return message.Instruction{}, err
	}
	bet, _, err := b.BetPDA(market, user)
	if err != nil {
		return message.Instruction{}, err
	}
	return b.betInstruction(consts.IxPlaceBet, user, market, bet, b.VaultPDA, betArgs{Amount: amount, Outcome: outcome})
}

func (b *Builder) betInstruction(
	name string,
	user, market, bet types.Pubkey,
	vaultOf func(types.Pubkey) (types.Pubkey, uint8, error),
	args betArgs,
) (message.Instruction, error) {
	treasury, _, err := b.TreasuryPDA()
	if err != nil {
		return message.Instruction{}, err
	}
	vault, _, err := vaultOf(market)
	if err != nil {
		return message.Instruction{}, err
	}
	data, err := encodeData(name, args)
	if err != nil {
		return message.Instruction{}, err
	}
	return message.Instruction{
		ProgramID: b.programID,
		Accounts: []message.AccountMeta{
			signer(user),
			writable(market),
			writable(bet),
			writable(treasury),
			writable(vault),
			readonly(consts.SystemProgram),
		},
		Data: data,
	}, nil
}

type resolveArgs struct {
	Outcome bool
}

// ResolveMarket 账户：resolver(signer, mut), market(mut)；链上要求 resolver 为市场创建者
func (b *Builder) ResolveMarket(resolver, market types.Pubkey, outcome bool) (message.Instruction, error) {
	data, err := encodeData(consts.IxResolveMarket, resolveArgs{Outcome: outcome})
	if err != nil {
		return message.Instruction{}, err
	}
	return message.Instruction{
		ProgramID: b.programID,
		Accounts: []message.AccountMeta{
			signer(resolver),
			writable(market),
		},
		Data: data,
	}, nil
}

// ClaimWinnings 账户：user(signer, mut), market(只读), bet PDA(mut), vault PDA(mut), system program
func (b *Builder) ClaimWinnings(user, market types.Pubkey) (message.Instruction, error) {
	bet, _, err := b.BetPDA(market, user)
	if err != nil {
		return message.Instruction{}, err
	}
	vault, _, err := b.VaultPDA(market)
	if err != nil {
		return message.Instruction{}, err
	}
	data, err := encodeData(consts.IxClaimWinnings, nil)
	if err != nil {
		return message.Instruction{}, err
	}
	return message.Instruction{
		ProgramID: b.programID,
		Accounts: []message.AccountMeta{
			signer(user),
			readonly(market),
			writable(bet),
			writable(vault),
			readonly(consts.SystemProgram),
		},
		Data: data,
	}, nil
}

// ===== 压缩市场 =====

type CreateLightMarketArgs struct {
	QuestionHash    [32]byte
	Category        uint8
	Region          uint8
	ResolveDate     int64
	OracleAuthority types.Pubkey // 全零表示不使用预言机
	OracleThreshold int64
	OracleAbove     bool
}

// NewCreateLightMarketArgs 由问题明文计算折叠哈希，明文本身不上链
func NewCreateLightMarketArgs(question string, category consts.Category, region consts.Region, resolveDate int64) CreateLightMarketArgs {
	return CreateLightMarketArgs{
		QuestionHash: decoder.FoldQuestionHash(question),
		Category:     uint8(category),
		Region:       uint8(region),
		ResolveDate:  resolveDate,
	}
}

// CreateLightMarket 账户：creator(signer, mut), light_market PDA(mut), system program
func (b *Builder) CreateLightMarket(creator types.Pubkey, args CreateLightMarketArgs) (message.Instruction, types.Pubkey, error) {
	if !consts.Category(args.Category).Valid() {
		return message.Instruction{}, types.Pubkey{}, fmt.Errorf("%w: %d", ErrInvalidCategory, args.Category)
	}
	if !consts.Region(args.Region).Valid() {
		return message.Instruction{}, types.Pubkey{}, fmt.Errorf("%w: %d", ErrInvalidRegion, args.Region)
	}
	now := b.now().Unix()
	if args.ResolveDate <= now || args.ResolveDate >= now+consts.MaxResolveHorizonSec {
		return message.Instruction{}, types.Pubkey{}, fmt.Errorf("%w: %d", ErrResolveDateRange, args.ResolveDate)
	}

	market, _, err := b.LightMarketPDA(creator, args.ResolveDate)
	if err != nil {
		return message.Instruction{}, types.Pubkey{}, err
	}
	data, err := encodeData(consts.IxCreateLightMarket, args)
	if err != nil {
		return message.Instruction{}, types.Pubkey{}, err
	}
	return message.Instruction{
		ProgramID: b.programID,
		Accounts: []message.AccountMeta{
			signer(creator),
			writable(market),
			readonly(consts.SystemProgram),
		},
		Data: data,
	}, market, nil
}

// PlaceLightBet 账户：bettor(signer, mut), market(mut), light_bet PDA(mut), treasury PDA(mut), light_vault PDA(mut), system program
func (b *Builder) PlaceLightBet(bettor, market types.Pubkey, amount uint64, outcome bool) (message.Instruction, error) {
	if err := ValidateBetAmount(amount); err != nil {
		return message.Instruction{}, err
	}
	bet, _, err := b.LightBetPDA(market, bettor)
	if err != nil {
		return message.Instruction{}, err
	}
	return b.betInstruction(consts.IxPlaceLightBet, bettor, market, bet, b.LightVaultPDA, betArgs{Amount: amount, Outcome: outcome})
}
