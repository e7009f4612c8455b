package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFields(t *testing.T) {
	fields := map[string]any{
		"address":  "HYDwFwax9U6svCRYWD7Fqq3TXxSSQCQ6CwKrb3ZTkD3z",
		"yes_pool": "1500000000",
		"active":   true,
		"bets":     3,
	}
	data, err := EncodeFields(7, fields)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 0, 0, 0}, data[:4])

	// 确定性编码
	again, err := EncodeFields(7, fields)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	eventType, st, err := DecodeFields(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), eventType)
	assert.Equal(t, "1500000000", st.Fields["yes_pool"].GetStringValue())
	assert.True(t, st.Fields["active"].GetBoolValue())
	assert.Equal(t, float64(3), st.Fields["bets"].GetNumberValue())
}

func TestDecodeFieldsErrors(t *testing.T) {
	_, _, err := DecodeFields([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShortEvent)

	_, _, err = DecodeFields([]byte{1, 0, 0, 0, 0xff, 0xff})
	assert.Error(t, err)

	_, err = EncodeFields(1, map[string]any{"bad": struct{}{}})
	assert.Error(t, err)
}

func TestPartitionHashBytes(t *testing.T) {
	key := make([]byte, 32)
	key[7], key[15], key[19], key[27] = 1, 2, 3, 5

	assert.Equal(t, uint32(0), PartitionHashBytes(key[:10], 4))
	assert.Equal(t, uint32(0), PartitionHashBytes(key, 1))
	assert.Equal(t, uint32(1), PartitionHashBytes(key, 4))

	hash := uint32(1)<<24 | uint32(2)<<16 | uint32(3)<<8 | 5
	assert.Equal(t, hash%6, PartitionHashBytes(key, 6))
}
