package ledger

import (
	"fmt"

	"github.com/zeromicro/go-zero/core/jsonx"

	"ilowa-market-sol/internal/types"
)

const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// LatestBlockhash getLatestBlockhash 结果
type LatestBlockhash struct {
	Blockhash            types.Hash
	LastValidBlockHeight uint64
}

// SimulationResult simulateTransaction 结果；Err 非空表示程序执行失败
type SimulationResult struct {
	Err           any
	Logs          []string
	UnitsConsumed uint64
}

func (r *SimulationResult) Failed() bool {
	return r != nil && r.Err != nil
}

// SignatureStatus getSignatureStatuses 中单条签名的状态
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	ConfirmationStatus string
	Err                any
}

// Reached 是否已达到目标确认级别
func (s *SignatureStatus) Reached(commitment string) bool {
	if s == nil {
		return false
	}
	switch commitment {
	case CommitmentFinalized:
		return s.ConfirmationStatus == CommitmentFinalized
	case CommitmentProcessed:
		return s.ConfirmationStatus != ""
	default:
		return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
	}
}

// FormatErr 将链上返回的 err 字段格式化为可读字符串
func FormatErr(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := jsonx.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
