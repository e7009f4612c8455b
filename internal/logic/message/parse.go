package message

import (
	"fmt"

	"ilowa-market-sol/internal/codec"
	"ilowa-market-sol/internal/types"
)

// ParseWireTransaction 解析签名器回传的完整交易字节（签名 + 消息）
func ParseWireTransaction(data []byte) (*WireTransaction, error) {
	numSigs, offset, err := codec.DecodeCompactLen(data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: signature count: %v", ErrMalformed, err)
	}
	if uint64(numSigs)*types.SignatureSize > uint64(len(data)-offset) {
		return nil, fmt.Errorf("%w: %d signatures exceed buffer", ErrMalformed, numSigs)
	}

	tx := &WireTransaction{Signatures: make([]types.Signature, numSigs)}
	for i := range tx.Signatures {
		copy(tx.Signatures[i][:], data[offset:])
		offset += types.SignatureSize
	}

	tx.Message, err = ParseMessage(data[offset:])
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ParseMessage Serialize 的逆操作
func ParseMessage(data []byte) (*Message, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: header", ErrMalformed)
	}
	m := &Message{Header: Header{
		NumRequiredSignatures:       data[0],
		NumReadonlySignedAccounts:   data[1],
		NumReadonlyUnsignedAccounts: data[2],
	}}
	offset := 3

	numKeys, offset, err := codec.DecodeCompactLen(data, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: account count: %v", ErrMalformed, err)
	}
	if uint64(numKeys)*32+32 > uint64(len(data)-offset) {
		return nil, fmt.Errorf("%w: %d account keys exceed buffer", ErrMalformed, numKeys)
	}
	m.AccountKeys = make([]types.Pubkey, numKeys)
	for i := range m.AccountKeys {
		copy(m.AccountKeys[i][:], data[offset:])
		offset += 32
	}
	copy(m.RecentBlockhash[:], data[offset:])
	offset += 32

	numIx, offset, err := codec.DecodeCompactLen(data, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: instruction count: %v", ErrMalformed, err)
	}
	for i := uint32(0); i < numIx; i++ {
		var ix CompiledInstruction
		if offset >= len(data) {
			return nil, fmt.Errorf("%w: instruction %d truncated", ErrMalformed, i)
		}
		ix.ProgramIDIndex = data[offset]
		offset++

		var n uint32
		if n, offset, err = codec.DecodeCompactLen(data, offset); err != nil {
			return nil, fmt.Errorf("%w: instruction %d accounts: %v", ErrMalformed, i, err)
		}
		if uint64(n) > uint64(len(data)-offset) {
			return nil, fmt.Errorf("%w: instruction %d accounts exceed buffer", ErrMalformed, i)
		}
		ix.Accounts = append([]uint8(nil), data[offset:offset+int(n)]...)
		offset += int(n)

		if n, offset, err = codec.DecodeCompactLen(data, offset); err != nil {
			return nil, fmt.Errorf("%w: instruction %d data: %v", ErrMalformed, i, err)
		}
		if uint64(n) > uint64(len(data)-offset) {
			return nil, fmt.Errorf("%w: instruction %d data exceeds buffer", ErrMalformed, i)
		}
		ix.Data = append([]byte(nil), data[offset:offset+int(n)]...)
		offset += int(n)

		m.Instructions = append(m.Instructions, ix)
	}
	return m, nil
}
