package decoder

import (
	"fmt"

	"ilowa-market-sol/internal/codec"
	"ilowa-market-sol/internal/types"
)

// MarketStatus 链上 Market.status 枚举（1 字节）
type MarketStatus uint8

const (
	StatusActive MarketStatus = iota
	StatusResolved
	StatusExpired
	StatusDisputed
)

var marketStatusNames = [...]string{"active", "resolved", "expired", "disputed"}

func (s MarketStatus) String() string {
	if int(s) < len(marketStatusNames) {
		return marketStatusNames[s]
	}
	return "unknown"
}

// MarketRecord 明文市场账户快照，解码后不可变
type MarketRecord struct {
	Address    types.Pubkey
	Creator    types.Pubkey
	Question   string
	Category   string
	Region     string
	IsPrivate  bool
	Status     MarketStatus
	Outcome    *bool
	YesPool    uint64
	NoPool     uint64
	TotalBets  uint32
	CreatedAt  int64
	ExpiresAt  int64
	ResolvedAt *int64
	Bump       uint8
}

// TotalPool 两侧资金池总额（lamports）
func (m *MarketRecord) TotalPool() uint64 {
	return m.YesPool + m.NoPool
}

// YesOdds YES 侧资金占比，空池返回 0.5
func (m *MarketRecord) YesOdds() float64 {
	return poolOdds(m.YesPool, m.NoPool)
}

func poolOdds(yes, no uint64) float64 {
	total := float64(yes) + float64(no)
	if total == 0 {
		return 0.5
	}
	return float64(yes) / total
}

// decodeMarket 解析 discriminator 之后的 Market 字段，offset 指向第 9 个字节
func decodeMarket(address types.Pubkey, data []byte, offset int) (*MarketRecord, error) {
	var (
		m   = &MarketRecord{Address: address}
		err error
	)

	if m.Creator, offset, err = ReadPubkey(data, offset); err != nil {
		return nil, fmt.Errorf("creator: %w", err)
	}
	if m.Question, offset, err = ReadString(data, offset); err != nil {
		return nil, fmt.Errorf("question: %w", err)
	}
	if m.Category, offset, err = ReadString(data, offset); err != nil {
		return nil, fmt.Errorf("category: %w", err)
	}
	if m.Region, offset, err = ReadString(data, offset); err != nil {
		return nil, fmt.Errorf("region: %w", err)
	}
	if m.IsPrivate, offset, err = ReadBool(data, offset); err != nil {
		return nil, fmt.Errorf("is_private: %w", err)
	}

	var status uint8
	if status, offset, err = ReadU8(data, offset); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if int(status) >= len(marketStatusNames) {
		return nil, fmt.Errorf("status: %w: %d", codec.ErrInvalidValue, status)
	}
	m.Status = MarketStatus(status)

	if m.Outcome, offset, err = ReadOption(data, offset, ReadBool); err != nil {
		return nil, fmt.Errorf("outcome: %w", err)
	}
	if m.YesPool, offset, err = ReadU64(data, offset); err != nil {
		return nil, fmt.Errorf("yes_pool: %w", err)
	}
	if m.NoPool, offset, err = ReadU64(data, offset); err != nil {
		return nil, fmt.Errorf("no_pool: %w", err)
	}
	if m.TotalBets, offset, err = ReadU32(data, offset); err != nil {
		return nil, fmt.Errorf("total_bets: %w", err)
	}
	if m.CreatedAt, offset, err = ReadI64(data, offset); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if m.ExpiresAt, offset, err = ReadI64(data, offset); err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	if m.ResolvedAt, offset, err = ReadOption(data, offset, ReadI64); err != nil {
		return nil, fmt.Errorf("resolved_at: %w", err)
	}

	// bump 位于末尾；早期账户可能未写入，缺失时保持 0
	if offset < len(data) {
		m.Bump = data[offset]
	}
	return m, nil
}
