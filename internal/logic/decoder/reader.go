package decoder

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"ilowa-market-sol/internal/codec"
	"ilowa-market-sol/internal/types"
)

// 基础读取器：输入 (data, offset)，返回 (value, nextOffset, error)。
// 越界一律返回 codec.ErrTruncated，不会 panic。

func need(data []byte, offset, n int) error {
	if offset < 0 || n < 0 || offset > len(data)-n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", codec.ErrTruncated, n, offset, len(data))
	}
	return nil
}

func ReadU8(data []byte, offset int) (uint8, int, error) {
	if err := need(data, offset, 1); err != nil {
		return 0, offset, err
	}
	return data[offset], offset + 1, nil
}

// ReadBool 任意非零字节均视为 true
func ReadBool(data []byte, offset int) (bool, int, error) {
	v, next, err := ReadU8(data, offset)
	return v != 0, next, err
}

func ReadU32(data []byte, offset int) (uint32, int, error) {
	if err := need(data, offset, 4); err != nil {
		return 0, offset, err
	}
	return binary.LittleEndian.Uint32(data[offset:]), offset + 4, nil
}

// ReadU64 由低/高两个 u32 小端半字拼接，整数运算，不经过浮点
func ReadU64(data []byte, offset int) (uint64, int, error) {
	if err := need(data, offset, 8); err != nil {
		return 0, offset, err
	}
	lo := binary.LittleEndian.Uint32(data[offset:])
	hi := binary.LittleEndian.Uint32(data[offset+4:])
	return uint64(hi)<<32 | uint64(lo), offset + 8, nil
}

func ReadI64(data []byte, offset int) (int64, int, error) {
	v, next, err := ReadU64(data, offset)
	return int64(v), next, err
}

// ReadString u32 长度前缀 + UTF-8 字节
func ReadString(data []byte, offset int) (string, int, error) {
	n, next, err := ReadU32(data, offset)
	if err != nil {
		return "", offset, err
	}
	if uint64(n) > uint64(len(data)-next) {
		return "", offset, fmt.Errorf("%w: string length %d exceeds remaining %d at offset %d",
			codec.ErrInvalidLength, n, len(data)-next, offset)
	}
	raw := data[next : next+int(n)]
	if !utf8.Valid(raw) {
		return "", offset, fmt.Errorf("%w: invalid utf-8 string at offset %d", codec.ErrInvalidValue, offset)
	}
	return string(raw), next + int(n), nil
}

func ReadPubkey(data []byte, offset int) (types.Pubkey, int, error) {
	var p types.Pubkey
	if err := need(data, offset, types.PubkeySize); err != nil {
		return p, offset, err
	}
	copy(p[:], data[offset:])
	return p, offset + types.PubkeySize, nil
}

func ReadBytes32(data []byte, offset int) ([32]byte, int, error) {
	var out [32]byte
	if err := need(data, offset, 32); err != nil {
		return out, offset, err
	}
	copy(out[:], data[offset:])
	return out, offset + 32, nil
}

// ReadOption 1 字节存在标记（只接受 0/1）+ 可选值
func ReadOption[T any](data []byte, offset int, read func([]byte, int) (T, int, error)) (*T, int, error) {
	flag, next, err := ReadU8(data, offset)
	if err != nil {
		return nil, offset, err
	}
	switch flag {
	case 0:
		return nil, next, nil
	case 1:
		v, after, err := read(data, next)
		if err != nil {
			return nil, offset, err
		}
		return &v, after, nil
	default:
		return nil, offset, fmt.Errorf("%w: option flag %d at offset %d", codec.ErrInvalidValue, flag, offset)
	}
}
