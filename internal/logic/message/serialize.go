package message

import (
	"encoding/base64"
	"fmt"

	"ilowa-market-sol/internal/codec"
	"ilowa-market-sol/internal/consts"
	"ilowa-market-sol/internal/types"
)

// Serialize 输出规范字节序列：
// header(3) + compact(账户数) + 32*账户 + blockhash(32) + compact(指令数) + 指令
// 每条指令：programIndex + compact(账户数) + 账户下标 + compact(数据长度) + 数据
func (m *Message) Serialize() []byte {
	size := 3 + 3 + len(m.AccountKeys)*32 + 32 + 3
	for _, ix := range m.Instructions {
		size += 1 + 3 + len(ix.Accounts) + 3 + len(ix.Data)
	}

	buf := make([]byte, 0, size)
	buf = append(buf,
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	)

	buf = codec.AppendCompactLen(buf, uint32(len(m.AccountKeys)))
	for _, key := range m.AccountKeys {
		buf = append(buf, key[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)

	buf = codec.AppendCompactLen(buf, uint32(len(m.Instructions)))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = codec.AppendCompactLen(buf, uint32(len(ix.Accounts)))
		buf = append(buf, ix.Accounts...)
		buf = codec.AppendCompactLen(buf, uint32(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// WireTransaction 待签名的交易：签名槽位数等于 NumRequiredSignatures，签名前全部为零
type WireTransaction struct {
	Signatures []types.Signature
	Message    *Message
}

// NewWireTransaction 创建零签名交易，签名由外部签名器填充
func NewWireTransaction(msg *Message) *WireTransaction {
	return &WireTransaction{
		Signatures: make([]types.Signature, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}
}

// Serialize compact(签名数) + 64*签名 + 消息字节；超过单包上限时报错
func (tx *WireTransaction) Serialize() ([]byte, error) {
	msgBytes := tx.Message.Serialize()

	buf := make([]byte, 0, 3+len(tx.Signatures)*types.SignatureSize+len(msgBytes))
	buf = codec.AppendCompactLen(buf, uint32(len(tx.Signatures)))
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	buf = append(buf, msgBytes...)

	if len(buf) > consts.MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(buf), consts.MaxTransactionSize)
	}
	return buf, nil
}

// Base64 RPC（simulateTransaction / sendTransaction）使用的编码
func (tx *WireTransaction) Base64() (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
