package consts

import (
	"ilowa-market-sol/internal/types"
)

// 公钥形式的地址常量（types.Pubkey），用于链上比对、指令构造等场景。
var (
	// Programs
	SystemProgram types.Pubkey
	MarketProgram types.Pubkey
)

// init 自动将 base58 字符串地址转换为 types.Pubkey
func init() {
	SystemProgram = types.PubkeyFromBase58(SystemProgramStr)
	MarketProgram = types.PubkeyFromBase58(MarketProgramStr)
}
