package message

import (
	"fmt"
	"sort"

	"ilowa-market-sol/internal/types"
)

const maxAccounts = 256

// Compile 将指令集编译为规范化消息：
//  1. fee payer 以 signer+writable 入表
//  2. 合并所有指令账户与 program id，重复账户的 signer/writable 取逻辑或
//  3. 除 fee payer 外的账户按 signer 优先、writable 优先、原始字节升序排序
//  4. fee payer 固定放在下标 0
//  5. 计算消息头并将指令账户转换为下标
//
// 相同输入总是产生相同输出，与指令内账户的插入顺序无关。
func Compile(feePayer types.Pubkey, instructions []Instruction, blockhash types.Hash) (*Message, error) {
	if feePayer.IsZero() {
		return nil, ErrNoFeePayer
	}
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}

	// 1~2. 合并账户
	metas := make(map[types.Pubkey]*AccountMeta, 8)
	merge := func(key types.Pubkey, signer, writable bool) {
		if m, ok := metas[key]; ok {
			m.IsSigner = m.IsSigner || signer
			m.IsWritable = m.IsWritable || writable
			return
		}
		metas[key] = &AccountMeta{Pubkey: key, IsSigner: signer, IsWritable: writable}
	}

	merge(feePayer, true, true)
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			merge(acc.Pubkey, acc.IsSigner, acc.IsWritable)
		}
		merge(ix.ProgramID, false, false)
	}

	if len(metas) > maxAccounts {
		return nil, fmt.Errorf("%w: %d", ErrTooManyAccounts, len(metas))
	}

	// 3. 排序（fee payer 不参与）
	rest := make([]AccountMeta, 0, len(metas)-1)
	for key, m := range metas {
		if key == feePayer {
			continue
		}
		rest = append(rest, *m)
	}
	sort.Slice(rest, func(i, j int) bool {
		a, b := rest[i], rest[j]
		if a.IsSigner != b.IsSigner {
			return a.IsSigner
		}
		if a.IsWritable != b.IsWritable {
			return a.IsWritable
		}
		return a.Pubkey.Compare(b.Pubkey) < 0
	})

	// 4. fee payer 固定在首位
	ordered := make([]AccountMeta, 0, len(metas))
	ordered = append(ordered, AccountMeta{Pubkey: feePayer, IsSigner: true, IsWritable: true})
	ordered = append(ordered, rest...)

	// 5. 消息头
	msg := &Message{
		AccountKeys:     make([]types.Pubkey, len(ordered)),
		RecentBlockhash: blockhash,
		Instructions:    make([]CompiledInstruction, 0, len(instructions)),
	}
	index := make(map[types.Pubkey]uint8, len(ordered))
	for i, m := range ordered {
		msg.AccountKeys[i] = m.Pubkey
		index[m.Pubkey] = uint8(i)

		switch {
		case m.IsSigner:
			msg.Header.NumRequiredSignatures++
			if !m.IsWritable {
				msg.Header.NumReadonlySignedAccounts++
			}
		case !m.IsWritable:
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}

	for _, ix := range instructions {
		accounts := make([]uint8, len(ix.Accounts))
		for i, acc := range ix.Accounts {
			accounts[i] = index[acc.Pubkey]
		}
		msg.Instructions = append(msg.Instructions, CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Accounts:       accounts,
			Data:           ix.Data,
		})
	}

	return msg, nil
}
