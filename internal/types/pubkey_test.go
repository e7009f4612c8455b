package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubkeyBase58(t *testing.T) {
	const addr = "HYDwFwax9U6svCRYWD7Fqq3TXxSSQCQ6CwKrb3ZTkD3z"
	p, err := TryPubkeyFromBase58(addr)
	require.NoError(t, err)
	assert.Equal(t, addr, p.String())
	assert.Equal(t, "HYDwFwax", p.Short())
	assert.False(t, p.IsZero())

	_, err = TryPubkeyFromBase58("3yZe7d")
	assert.Error(t, err, "长度不足 32 字节应报错")

	_, err = TryPubkeyFromBase58("0OIl")
	assert.Error(t, err)
}

func TestPubkeyCompare(t *testing.T) {
	a := Pubkey{1}
	b := Pubkey{2}
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, Pubkey{}.IsZero())
}

func TestSignatureSentinel(t *testing.T) {
	var zero Signature
	assert.True(t, zero.IsZero())

	sig, err := SignatureFromBytes(append(make([]byte, 63), 1))
	require.NoError(t, err)
	assert.False(t, sig.IsZero())

	parsed, err := SignatureFromBase58(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig, parsed)

	_, err = SignatureFromBytes(make([]byte, 10))
	assert.Error(t, err)
}
