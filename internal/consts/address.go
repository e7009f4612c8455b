package consts

// Base58 地址常量（可读性高，适合配置与日志使用）
const (
	//  Programs
	SystemProgramStr = "11111111111111111111111111111111"

	// 预测市场程序（devnet 部署地址，可通过配置覆盖）
	MarketProgramStr = "HYDwFwax9U6svCRYWD7Fqq3TXxSSQCQ6CwKrb3ZTkD3z"
)

// PDA 种子前缀，必须与链上程序一致
const (
	SeedMarket      = "market"
	SeedBet         = "bet"
	SeedTreasury    = "treasury"
	SeedVault       = "vault"
	SeedLightMarket = "light_market"
	SeedLightBet    = "light_bet"
	SeedLightVault  = "light_vault"
)
