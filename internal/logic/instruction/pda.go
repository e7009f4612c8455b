package instruction

import (
	"encoding/binary"
	"fmt"

	"github.com/blocto/solana-go-sdk/common"

	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/types"
)

// findPDA 使用 SDK 的 FindProgramAddress 推导 PDA
func findPDA(programID types.Pubkey, seeds ...[]byte) (types.Pubkey, uint8, error) {
	addr, bump, err := common.FindProgramAddress(seeds, common.PublicKey(programID))
	if err != nil {
		return types.Pubkey{}, 0, fmt.Errorf("find program address: %w", err)
	}
	return types.Pubkey(addr), bump, nil
}

func i64LE(v int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

// MarketPDA seeds = ["market", creator, expires_at(LE)]
func (b *Builder) MarketPDA(creator types.Pubkey, expiresAt int64) (types.Pubkey, uint8, error) {
	return findPDA(b.programID, []byte(consts.SeedMarket), creator[:], i64LE(expiresAt))
}

// BetPDA seeds = ["bet", market, user]
func (b *Builder) BetPDA(market, user types.Pubkey) (types.Pubkey, uint8, error) {
	return findPDA(b.programID, []byte(consts.SeedBet), market[:], user[:])
}

// TreasuryPDA seeds = ["treasury"]
func (b *Builder) TreasuryPDA() (types.Pubkey, uint8, error) {
	return findPDA(b.programID, []byte(consts.SeedTreasury))
}

// VaultPDA seeds = ["vault", market]
func (b *Builder) VaultPDA(market types.Pubkey) (types.Pubkey, uint8, error) {
	return findPDA(b.programID, []byte(consts.SeedVault), market[:])
}

// LightMarketPDA seeds = ["light_market", creator, resolve_date(LE)]
func (b *Builder) LightMarketPDA(creator types.Pubkey, resolveDate int64) (types.Pubkey, uint8, error) {
	return findPDA(b.programID, []byte(consts.SeedLightMarket), creator[:], i64LE(resolveDate))
}

// LightBetPDA seeds = ["light_bet", market, bettor]
func (b *Builder) LightBetPDA(market, bettor types.Pubkey) (types.Pubkey, uint8, error) {
	return findPDA(b.programID, []byte(consts.SeedLightBet), market[:], bettor[:])
}

// LightVaultPDA seeds = ["light_vault", market]
func (b *Builder) LightVaultPDA(market types.Pubkey) (types.Pubkey, uint8, error) {
	return findPDA(b.programID, []byte(consts.SeedLightVault), market[:])
}
