package types

import (
	"fmt"

	"ilowa-market-sol/internal/codec"
)

const SignatureSize = 64

// Signature 64 字节 ed25519 签名。
// 全零签名是外部签名器“自身模拟失败后拒签”的哨兵值，不能视为成功。
type Signature [SignatureSize]byte

func (s Signature) String() string {
	return codec.Base58Encode(s[:])
}

func (s Signature) IsZero() bool {
	return s == Signature{}
}

func SignatureFromBytes(b []byte) (Signature, error) {
	var s Signature
	if len(b) != SignatureSize {
		return s, fmt.Errorf("invalid signature length: got %d, want 64", len(b))
	}
	copy(s[:], b)
	return s, nil
}

func SignatureFromBase58(str string) (Signature, error) {
	data, err := codec.Base58Decode(str)
	if err != nil {
		return Signature{}, err
	}
	return SignatureFromBytes(data)
}
