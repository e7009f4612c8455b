package types

import (
	"fmt"

	"ilowa-market-sol/internal/codec"
)

// Hash 32 字节哈希（blockhash 等）
type Hash [32]byte

func (h Hash) String() string {
	return codec.Base58Encode(h[:])
}

func (h Hash) Equals(other Hash) bool {
	return h == other
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func HashFromBase58(s string) (Hash, error) {
	var h Hash
	data, err := codec.Base58Decode(s)
	if err != nil {
		return h, err
	}
	if len(data) != 32 {
		return h, fmt.Errorf("invalid hash length: got %d, want 32", len(data))
	}
	copy(h[:], data)
	return h, nil
}
