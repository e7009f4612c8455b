package message

import (
	"errors"

	"ilowa-market-sol/internal/types"
)

var (
	ErrNoFeePayer      = errors.New("message: fee payer is required")
	ErrNoInstructions  = errors.New("message: at least one instruction is required")
	ErrTooManyAccounts = errors.New("message: account count exceeds 256")
	ErrTooLarge        = errors.New("message: transaction exceeds packet size")
	ErrMalformed       = errors.New("message: malformed message bytes")
)

// AccountMeta 指令引用的账户及其权限。同一账户多次出现时 signer/writable 取逻辑或。
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction 待编译的指令
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Header 消息头三个计数
type Header struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction 账户以下标引用 Message.AccountKeys
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message 规范化后的交易消息。AccountKeys[0] 恒为 fee payer（signer + writable）。
type Message struct {
	Header          Header
	AccountKeys     []types.Pubkey
	RecentBlockhash types.Hash
	Instructions    []CompiledInstruction
}

func (m *Message) FeePayer() types.Pubkey {
	if len(m.AccountKeys) == 0 {
		return types.Pubkey{}
	}
	return m.AccountKeys[0]
}

func (m *Message) IsSigner(index int) bool {
	return index < int(m.Header.NumRequiredSignatures)
}

func (m *Message) IsWritable(index int) bool {
	numKeys := len(m.AccountKeys)
	numSigners := int(m.Header.NumRequiredSignatures)
	if index < numSigners {
		return index < numSigners-int(m.Header.NumReadonlySignedAccounts)
	}
	return index < numKeys-int(m.Header.NumReadonlyUnsignedAccounts)
}

// AccountMetas 按最终顺序还原每个账户的权限，用于诊断日志
func (m *Message) AccountMetas() []AccountMeta {
	metas := make([]AccountMeta, len(m.AccountKeys))
	for i, key := range m.AccountKeys {
		metas[i] = AccountMeta{Pubkey: key, IsSigner: m.IsSigner(i), IsWritable: m.IsWritable(i)}
	}
	return metas
}
