package decoder

import (
	"encoding/binary"
	"fmt"

	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/types"
)

// Kind 账户布局类型，由前 8 字节 discriminator 决定
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMarket
	KindCompressedMarket
)

func (k Kind) String() string {
	switch k {
	case KindMarket:
		return "market"
	case KindCompressedMarket:
		return "compressed_market"
	default:
		return "unknown"
	}
}

// Record 解码结果（tagged union），Kind 决定哪个字段有效
type Record struct {
	Kind       Kind
	Market     *MarketRecord
	Compressed *CompressedMarketRecord
}

func (r Record) Address() types.Pubkey {
	switch r.Kind {
	case KindMarket:
		return r.Market.Address
	case KindCompressedMarket:
		return r.Compressed.Address
	default:
		return types.Pubkey{}
	}
}

// Decode 按 discriminator 分派解码：
// - 未知 discriminator 或不足 8 字节：返回 KindUnknown，error 为 nil
// - 已知布局但字段解析失败：返回 error
func Decode(address types.Pubkey, data []byte) (Record, error) {
	if len(data) < 8 {
		return Record{Kind: KindUnknown}, nil
	}

	switch binary.BigEndian.Uint64(data[:8]) {
	case consts.MarketDiscriminatorU64:
		m, err := decodeMarket(address, data, 8)
		if err != nil {
			return Record{}, fmt.Errorf("decode market %s: %w", address, err)
		}
		return Record{Kind: KindMarket, Market: m}, nil
	case consts.LightMarketDiscriminatorU64:
		m, err := decodeCompressedMarket(address, data, 8)
		if err != nil {
			return Record{}, fmt.Errorf("decode compressed market %s: %w", address, err)
		}
		return Record{Kind: KindCompressedMarket, Compressed: m}, nil
	default:
		return Record{Kind: KindUnknown}, nil
	}
}
