package decoder

import (
	"testing"

	"github.com/near/borsh-go"
	"github.com/stretchr/testify/require"

	"ilowa-market-sol/internal/consts"
)

// 以下结构体与链上账户字段顺序一致，用独立的 borsh 编码器生成测试数据

type marketFixture struct {
	Discriminator [8]byte
	Creator       [32]byte
	Question      string
	Category      string
	Region        string
	IsPrivate     bool
	Status        uint8
	Outcome       *bool
	YesPool       uint64
	NoPool        uint64
	TotalBets     uint32
	CreatedAt     int64
	ExpiresAt     int64
	ResolvedAt    *int64
	Bump          uint8
}

type lightMarketFixture struct {
	Discriminator    [8]byte
	Creator          [32]byte
	QuestionHash     [32]byte
	Category         uint8
	Region           uint8
	ResolveDate      int64
	YesPool          uint64
	NoPool           uint64
	TotalBets        uint32
	ShieldedBetCount uint32
	IsActive         bool
	Resolved         bool
	Outcome          uint8
	CreatedAt        int64
	OracleAuthority  [32]byte
	OracleThreshold  int64
	OracleAbove      bool
	Bump             uint8
}

func newMarketFixture() marketFixture {
	return marketFixture{
		Discriminator: consts.MarketDiscriminator,
		Creator:       [32]byte{7, 7, 7},
		Question:      "Will Lagos get rain on Friday?",
		Category:      "Weather",
		Region:        "West Africa",
		Status:        uint8(StatusActive),
		YesPool:       1<<60 + 1, // 超过 2^53，校验整数精度
		NoPool:        250_000_000,
		TotalBets:     12,
		CreatedAt:     1_700_000_000,
		ExpiresAt:     1_800_000_000,
		Bump:          254,
	}
}

func newLightMarketFixture() lightMarketFixture {
	return lightMarketFixture{
		Discriminator:    consts.LightMarketDiscriminator,
		Creator:          [32]byte{9},
		QuestionHash:     FoldQuestionHash("Will BTC close above 100k?"),
		Category:         uint8(consts.CategoryCrypto),
		Region:           uint8(consts.RegionGlobal),
		ResolveDate:      1_750_000_000,
		YesPool:          3_000_000_000,
		NoPool:           1_000_000_000,
		TotalBets:        5,
		ShieldedBetCount: 2,
		IsActive:         true,
		CreatedAt:        1_700_000_100,
		Bump:             253,
	}
}

func mustBorsh(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := borsh.Serialize(v)
	require.NoError(t, err)
	return data
}
