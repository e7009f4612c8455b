package codec

import "fmt"

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// base58Index 字符 → 字母表下标，-1 表示非法字符
var base58Index [256]int8

func init() {
	for i := range base58Index {
		base58Index[i] = -1
	}
	for i := 0; i < len(base58Alphabet); i++ {
		base58Index[base58Alphabet[i]] = int8(i)
	}
}

// Base58Decode 按经典的无大数算法解码：
// 每读入一个字符，把累加缓冲区整体乘 58 再加上字符下标，逐字节传播进位。
// 前导 '1' 原样保留为前导 0x00 字节。
func Base58Decode(text string) ([]byte, error) {
	zeros := 0
	for zeros < len(text) && text[zeros] == '1' {
		zeros++
	}

	// acc 以小端序存放累加值，最后再翻转
	acc := make([]byte, 0, len(text)*733/1000+1)
	for i := zeros; i < len(text); i++ {
		idx := base58Index[text[i]]
		if idx < 0 {
			return nil, fmt.Errorf("%w %q at position %d", ErrInvalidCharacter, text[i], i)
		}

		carry := int(idx)
		for j := range acc {
			carry += int(acc[j]) * 58
			acc[j] = byte(carry)
			carry >>= 8
		}
		for carry > 0 {
			acc = append(acc, byte(carry))
			carry >>= 8
		}
	}

	out := make([]byte, zeros+len(acc))
	for i, b := range acc {
		out[len(out)-1-i] = b
	}
	return out, nil
}

// Base58Encode 是 Base58Decode 的严格逆运算，前导 0x00 字节编码为 '1'
func Base58Encode(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}

	// digits 以小端序存放 58 进制数位
	digits := make([]byte, 0, len(data)*138/100+1)
	for i := zeros; i < len(data); i++ {
		carry := int(data[i])
		for j := range digits {
			carry += int(digits[j]) << 8
			digits[j] = byte(carry % 58)
			carry /= 58
		}
		for carry > 0 {
			digits = append(digits, byte(carry%58))
			carry /= 58
		}
	}

	out := make([]byte, zeros+len(digits))
	for i := 0; i < zeros; i++ {
		out[i] = base58Alphabet[0]
	}
	for i, d := range digits {
		out[len(out)-1-i] = base58Alphabet[d]
	}
	return string(out)
}
