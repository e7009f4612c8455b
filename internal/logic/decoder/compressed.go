package decoder

import (
	"fmt"

	"ilowa-market-sol/internal/codec"
	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/types"
)

// CompressedMarketSize 压缩市场账户 discriminator 之后的固定长度
const CompressedMarketSize = 151

// OracleConfig 预言机自动结算配置，仅当 authority 非零时存在
type OracleConfig struct {
	Authority types.Pubkey
	Threshold int64
	Above     bool // true: 价格 >= threshold 时 YES 胜出
}

// CompressedMarketRecord 压缩（隐私）市场账户快照。
// 链上只保存问题文本的 32 字节折叠哈希，不可逆。
type CompressedMarketRecord struct {
	Address          types.Pubkey
	Creator          types.Pubkey
	QuestionHash     [32]byte
	Category         consts.Category
	Region           consts.Region
	ResolveDate      int64
	YesPool          uint64
	NoPool           uint64
	TotalBets        uint32
	ShieldedBetCount uint32
	IsActive         bool
	Resolved         bool
	Outcome          *bool
	CreatedAt        int64
	Oracle           *OracleConfig
	Bump             uint8
}

func (m *CompressedMarketRecord) CategoryName() string {
	return m.Category.String()
}

func (m *CompressedMarketRecord) RegionName() string {
	return m.Region.String()
}

func (m *CompressedMarketRecord) TotalPool() uint64 {
	return m.YesPool + m.NoPool
}

func (m *CompressedMarketRecord) YesOdds() float64 {
	return poolOdds(m.YesPool, m.NoPool)
}

// PlaceholderLabel 无法从旁路缓存取回问题文本时展示的占位标题
func (m *CompressedMarketRecord) PlaceholderLabel() string {
	return PlaceholderLabel(m.Address)
}

// MatchesQuestion 判断给定问题文本的折叠哈希是否与链上一致
func (m *CompressedMarketRecord) MatchesQuestion(question string) bool {
	return FoldQuestionHash(question) == m.QuestionHash
}

func PlaceholderLabel(address types.Pubkey) string {
	return "Market #" + address.Short()
}

// FoldQuestionHash 将问题文本的 UTF-8 字节按位异或折叠进 32 字节，与创建市场时客户端的算法一致
func FoldQuestionHash(question string) [32]byte {
	var out [32]byte
	for i := 0; i < len(question); i++ {
		out[i%32] ^= question[i]
	}
	return out
}

func decodeCompressedMarket(address types.Pubkey, data []byte, offset int) (*CompressedMarketRecord, error) {
	if len(data)-offset < CompressedMarketSize {
		return nil, fmt.Errorf("%w: compressed market needs %d bytes, have %d",
			codec.ErrTruncated, CompressedMarketSize, len(data)-offset)
	}

	var (
		m   = &CompressedMarketRecord{Address: address}
		u8  uint8
		err error
	)

	// 长度已整体校验，以下读取不会越界
	m.Creator, offset, _ = ReadPubkey(data, offset)
	m.QuestionHash, offset, _ = ReadBytes32(data, offset)
	u8, offset, _ = ReadU8(data, offset)
	m.Category = consts.Category(u8)
	u8, offset, _ = ReadU8(data, offset)
	m.Region = consts.Region(u8)
	m.ResolveDate, offset, _ = ReadI64(data, offset)
	m.YesPool, offset, _ = ReadU64(data, offset)
	m.NoPool, offset, _ = ReadU64(data, offset)
	m.TotalBets, offset, _ = ReadU32(data, offset)
	m.ShieldedBetCount, offset, _ = ReadU32(data, offset)
	m.IsActive, offset, _ = ReadBool(data, offset)
	m.Resolved, offset, _ = ReadBool(data, offset)

	u8, offset, _ = ReadU8(data, offset)
	if m.Outcome, err = compressedOutcome(u8); err != nil {
		return nil, err
	}

	m.CreatedAt, offset, _ = ReadI64(data, offset)

	var oracle OracleConfig
	oracle.Authority, offset, _ = ReadPubkey(data, offset)
	oracle.Threshold, offset, _ = ReadI64(data, offset)
	oracle.Above, offset, _ = ReadBool(data, offset)
	if !oracle.Authority.IsZero() {
		m.Oracle = &oracle
	}

	m.Bump, _, _ = ReadU8(data, offset)
	return m, nil
}

// compressedOutcome 0=未结算, 1=YES, 2=NO
func compressedOutcome(v uint8) (*bool, error) {
	switch v {
	case 0:
		return nil, nil
	case 1:
		yes := true
		return &yes, nil
	case 2:
		no := false
		return &no, nil
	default:
		return nil, fmt.Errorf("outcome: %w: %d", codec.ErrInvalidValue, v)
	}
}
