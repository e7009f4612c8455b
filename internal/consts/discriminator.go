package consts

import (
	"crypto/sha256"
	"encoding/binary"
)

// Anchor 账户名与指令名（用于计算 8 字节 discriminator）
const (
	AccountNameMarket      = "Market"
	AccountNameLightMarket = "LightMarketStub"

	IxCreateMarket      = "create_market"
	IxPlaceBet          = "place_bet"
	IxResolveMarket     = "resolve_market"
	IxClaimWinnings     = "claim_winnings"
	IxCreateLightMarket = "create_light_market"
	IxPlaceLightBet     = "place_light_bet"
)

var (
	// 账户 discriminator = sha256("account:<Name>")[:8]
	MarketDiscriminator      [8]byte
	LightMarketDiscriminator [8]byte

	// 大端 uint64 形式，便于 switch 分派
	MarketDiscriminatorU64      uint64
	LightMarketDiscriminatorU64 uint64
)

func init() {
	MarketDiscriminator = AccountDiscriminator(AccountNameMarket)
	LightMarketDiscriminator = AccountDiscriminator(AccountNameLightMarket)

	MarketDiscriminatorU64 = binary.BigEndian.Uint64(MarketDiscriminator[:])
	LightMarketDiscriminatorU64 = binary.BigEndian.Uint64(LightMarketDiscriminator[:])
}

// AccountDiscriminator 计算 Anchor 账户 discriminator
func AccountDiscriminator(name string) [8]byte {
	return anchorHash("account:" + name)
}

// InstructionDiscriminator 计算 Anchor 指令 discriminator
func InstructionDiscriminator(name string) [8]byte {
	return anchorHash("global:" + name)
}

func anchorHash(preimage string) [8]byte {
	sum := sha256.Sum256([]byte(preimage))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}
