package codec

import "fmt"

// maxCompactLenBytes u32 最多占用 5 个 7-bit 分组
const maxCompactLenBytes = 5

// EncodeCompactLen 将 n 编码为 compact-u16 风格的变长整数：
// 每字节低 7 位存数据（小端分组），最高位为延续位，剩余值为 0 时结束。
func EncodeCompactLen(n uint32) []byte {
	return AppendCompactLen(make([]byte, 0, maxCompactLenBytes), n)
}

// AppendCompactLen 与 EncodeCompactLen 相同，但直接追加到 buf，避免额外分配
func AppendCompactLen(buf []byte, n uint32) []byte {
	rem := n
	for {
		elem := byte(rem & 0x7f)
		rem >>= 7
		if rem == 0 {
			return append(buf, elem)
		}
		buf = append(buf, elem|0x80)
	}
}

// DecodeCompactLen 从 data[offset:] 读取一个变长整数，返回值与下一个读取位置。
// 在读完最后一个分组前越过 buffer 末尾时返回 ErrTruncated。
func DecodeCompactLen(data []byte, offset int) (uint32, int, error) {
	if offset < 0 {
		return 0, offset, fmt.Errorf("compact len at offset %d: %w", offset, ErrInvalidLength)
	}

	var value uint32
	for i := 0; i < maxCompactLenBytes; i++ {
		pos := offset + i
		if pos >= len(data) {
			return 0, offset, fmt.Errorf("compact len at offset %d: %w", offset, ErrTruncated)
		}
		elem := data[pos]
		if i == maxCompactLenBytes-1 && elem > 0x0f {
			return 0, offset, fmt.Errorf("compact len at offset %d: %w", offset, ErrOverlong)
		}
		value |= uint32(elem&0x7f) << (7 * i)
		if elem&0x80 == 0 {
			return value, pos + 1, nil
		}
	}
	return 0, offset, fmt.Errorf("compact len at offset %d: %w", offset, ErrOverlong)
}
