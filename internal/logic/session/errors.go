package session

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 错误分类
type Kind uint8

const (
	KindTransport Kind = iota + 1
	KindBuild
	KindSimulationRejected
	KindSigner
	KindConfirmationTimeout
	KindOnChain
	KindSessionBusy
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "TransportError"
	case KindBuild:
		return "BuildError"
	case KindSimulationRejected:
		return "SimulationRejected"
	case KindSigner:
		return "SignerError"
	case KindConfirmationTimeout:
		return "ConfirmationTimeout"
	case KindOnChain:
		return "OnChainError"
	case KindSessionBusy:
		return "SessionBusy"
	default:
		return "UnknownError"
	}
}

var (
	ErrSessionBusy   = errors.New("session: another signing session is pending")
	ErrNoSignerKey   = errors.New("session: no signer key known before authorization")
	ErrZeroSignature = errors.New("session: signer returned all-zero signature")
	ErrNoSignature   = errors.New("session: signer returned no signature")
	ErrNoAccounts    = errors.New("session: signer authorized no accounts")
	ErrUnconfirmed   = errors.New("session: transaction not confirmed before deadline")
)

// StageError 带阶段标记的错误。Stage 为失败时正在进入的状态。
type StageError struct {
	Stage State
	Kind  Kind
	Err   error
	Logs  []string // 模拟失败时的程序日志
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session: %s failed at %s", e.Kind, e.Stage)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage State, kind Kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindOf 提取错误分类，非 StageError 返回 0
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// StageOf 提取失败阶段
func StageOf(err error) (State, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return StateIdle, false
}

func IsTimeout(err error) bool            { return KindOf(err) == KindConfirmationTimeout }
func IsSignerError(err error) bool        { return KindOf(err) == KindSigner }
func IsBuildError(err error) bool         { return KindOf(err) == KindBuild }
func IsSimulationRejected(err error) bool { return KindOf(err) == KindSimulationRejected }
func IsOnChainError(err error) bool       { return KindOf(err) == KindOnChain }
func IsSessionBusy(err error) bool        { return KindOf(err) == KindSessionBusy }
