package instruction

import (
	"errors"
	"testing"
	"time"

	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/logic/decoder"
	"ilowa-market-sol/internal/logic/message"
	"ilowa-market-sol/internal/types"
)

var (
	creator = types.Pubkey{0x11, 0x22}
	fixedAt = time.Unix(1_700_000_000, 0)
)

func newTestBuilder() *Builder {
	b := NewBuilder(consts.MarketProgram)
	b.now = func() time.Time { return fixedAt }
	return b
}

func TestCreateMarket(t *testing.T) {
	b := newTestBuilder()
	args := CreateMarketArgs{
		Question:  "Will it rain in Accra tomorrow?",
		Category:  "Weather",
		Region:    "West Africa",
		ExpiresAt: fixedAt.Unix() + 3600,
	}

	ix, market, err := b.CreateMarket(creator, args)
	require.NoError(t, err)

	expectedMarket, _, err := b.MarketPDA(creator, args.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, expectedMarket, market)

	require.Len(t, ix.Accounts, 3)
	assert.Equal(t, message.AccountMeta{Pubkey: creator, IsSigner: true, IsWritable: true}, ix.Accounts[0])
	assert.Equal(t, message.AccountMeta{Pubkey: market, IsWritable: true}, ix.Accounts[1])
	assert.Equal(t, message.AccountMeta{Pubkey: consts.SystemProgram}, ix.Accounts[2])
	assert.Equal(t, consts.MarketProgram, ix.ProgramID)

	disc := consts.InstructionDiscriminator(consts.IxCreateMarket)
	assert.Equal(t, disc[:], ix.Data[:8])

	var decoded CreateMarketArgs
	require.NoError(t, borsh.Deserialize(&decoded, ix.Data[8:]))
	assert.Equal(t, args, decoded)
}

func TestCreateMarketValidation(t *testing.T) {
	b := newTestBuilder()

	_, _, err := b.CreateMarket(creator, CreateMarketArgs{Question: "   ", ExpiresAt: fixedAt.Unix() + 10})
	assert.True(t, errors.Is(err, ErrEmptyQuestion))

	long := make([]byte, consts.MaxQuestionLen+1)
	for i := range long {
		long[i] = 'q'
	}
	_, _, err = b.CreateMarket(creator, CreateMarketArgs{Question: string(long), ExpiresAt: fixedAt.Unix() + 10})
	assert.True(t, errors.Is(err, ErrQuestionTooLong))

	_, _, err = b.CreateMarket(creator, CreateMarketArgs{Question: "ok?", ExpiresAt: fixedAt.Unix()})
	assert.True(t, errors.Is(err, ErrInvalidExpiry))
}

func TestPlaceBet(t *testing.T) {
	b := newTestBuilder()
	user := types.Pubkey{0x33}
	market := types.Pubkey{0x44}

	ix, err := b.PlaceBet(user, market, consts.MinBetLamports, true)
	require.NoError(t, err)
	require.Len(t, ix.Accounts, 6)

	bet, _, _ := b.BetPDA(market, user)
	treasury, _, _ := b.TreasuryPDA()
	vault, _, _ := b.VaultPDA(market)
	assert.Equal(t, []types.Pubkey{user, market, bet, treasury, vault, consts.SystemProgram}, pubkeys(ix.Accounts))
	assert.True(t, ix.Accounts[0].IsSigner)
	for _, acc := range ix.Accounts[1:5] {
		assert.True(t, acc.IsWritable)
		assert.False(t, acc.IsSigner)
	}

	var args betArgs
	require.NoError(t, borsh.Deserialize(&args, ix.Data[8:]))
	assert.Equal(t, consts.MinBetLamports, args.Amount)
	assert.True(t, args.Outcome)

	t.Run("金额越界", func(t *testing.T) {
		_, err := b.PlaceBet(user, market, consts.MinBetLamports-1, true)
		assert.True(t, errors.Is(err, ErrBetTooSmall))
		_, err = b.PlaceBet(user, market, consts.MaxBetLamports+1, false)
		assert.True(t, errors.Is(err, ErrBetTooLarge))
	})
}

func TestResolveAndClaim(t *testing.T) {
	b := newTestBuilder()
	market := types.Pubkey{0x55}

	ix, err := b.ResolveMarket(creator, market, false)
	require.NoError(t, err)
	assert.Equal(t, []types.Pubkey{creator, market}, pubkeys(ix.Accounts))
	assert.Equal(t, byte(0), ix.Data[8])

	claim, err := b.ClaimWinnings(creator, market)
	require.NoError(t, err)
	assert.Len(t, claim.Data, 8, "claim_winnings 无参数")
	assert.False(t, claim.Accounts[1].IsWritable, "claim 时 market 只读")
}

func TestLightMarket(t *testing.T) {
	b := newTestBuilder()
	question := "Will BTC close above 100k?"
	args := NewCreateLightMarketArgs(question, consts.CategoryCrypto, consts.RegionGlobal, fixedAt.Unix()+86400)
	args.OracleAuthority = types.Pubkey{0x77}
	args.OracleThreshold = 100_000
	args.OracleAbove = true

	ix, market, err := b.CreateLightMarket(creator, args)
	require.NoError(t, err)
	assert.Equal(t, decoder.FoldQuestionHash(question), args.QuestionHash)

	var decoded CreateLightMarketArgs
	require.NoError(t, borsh.Deserialize(&decoded, ix.Data[8:]))
	assert.Equal(t, args, decoded)
	assert.Len(t, ix.Data, 8+32+1+1+8+32+8+1)

	bet, err := b.PlaceLightBet(creator, market, consts.LamportsPerSol, false)
	require.NoError(t, err)
	lightVault, _, _ := b.LightVaultPDA(market)
	assert.Equal(t, lightVault, bet.Accounts[4].Pubkey)

	t.Run("参数校验", func(t *testing.T) {
		bad := args
		bad.Category = 7
		_, _, err := b.CreateLightMarket(creator, bad)
		assert.True(t, errors.Is(err, ErrInvalidCategory))

		bad = args
		bad.Region = 9
		_, _, err = b.CreateLightMarket(creator, bad)
		assert.True(t, errors.Is(err, ErrInvalidRegion))

		bad = args
		bad.ResolveDate = fixedAt.Unix() + consts.MaxResolveHorizonSec
		_, _, err = b.CreateLightMarket(creator, bad)
		assert.True(t, errors.Is(err, ErrResolveDateRange))
	})
}

func TestPDADeterministic(t *testing.T) {
	b := newTestBuilder()
	a1, bump1, err := b.LightMarketPDA(creator, 42)
	require.NoError(t, err)
	a2, bump2, err := b.LightMarketPDA(creator, 42)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, bump1, bump2)

	a3, _, err := b.LightMarketPDA(creator, 43)
	require.NoError(t, err)
	assert.NotEqual(t, a1, a3)

	m, _, _ := b.MarketPDA(creator, 42)
	assert.NotEqual(t, a1, m, "不同种子前缀")
}

func TestSplitBetAmount(t *testing.T) {
	fee, net := SplitBetAmount(1_000_000_000)
	assert.Equal(t, uint64(5_000_000), fee)
	assert.Equal(t, uint64(995_000_000), net)

	fee, net = SplitBetAmount(consts.MaxBetLamports)
	assert.Equal(t, consts.MaxBetLamports, fee+net)
	assert.Equal(t, uint64(500_000_000), fee)
}

func pubkeys(metas []message.AccountMeta) []types.Pubkey {
	out := make([]types.Pubkey, len(metas))
	for i, m := range metas {
		out[i] = m.Pubkey
	}
	return out
}
