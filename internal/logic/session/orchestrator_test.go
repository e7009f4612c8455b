package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ilowa-market-sol/internal/ledger"
	"ilowa-market-sol/internal/logic/message"
	"ilowa-market-sol/internal/signer"
	"ilowa-market-sol/internal/types"
)

var (
	testProgram   = types.Pubkey{0x10}
	testBlockhash = types.Hash{0xbb, 0x01}
	walletKey     = types.Pubkey{0xa1}
	otherKey      = types.Pubkey{0xa2}
	goodSig       = types.Signature{0x5a, 0x5a}
	testIdentity  = signer.AppIdentity{Name: "ilowa", URI: "https://ilowa.app"}
)

// ===== fakes =====

type fakeLedger struct {
	mu             sync.Mutex
	blockhashCalls int
	blockhashErr   error
	simulateCalls  int
	simResult      *ledger.SimulationResult
	simErr         error
	statusCalls    int
	statuses       []*ledger.SignatureStatus // 依次返回，用尽后重复最后一个
	statusErr      error
}

func (f *fakeLedger) GetLatestBlockhash(ctx context.Context) (ledger.LatestBlockhash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashCalls++
	if f.blockhashErr != nil {
		return ledger.LatestBlockhash{}, f.blockhashErr
	}
	return ledger.LatestBlockhash{Blockhash: testBlockhash, LastValidBlockHeight: 100}, nil
}

func (f *fakeLedger) SimulateTransaction(ctx context.Context, payload string) (*ledger.SimulationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateCalls++
	if f.simErr != nil {
		return nil, f.simErr
	}
	if f.simResult != nil {
		return f.simResult, nil
	}
	return &ledger.SimulationResult{Logs: []string{"Program log: ok"}, UnitsConsumed: 5000}, nil
}

func (f *fakeLedger) GetSignatureStatus(ctx context.Context, sig types.Signature) (*ledger.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return nil, nil
	}
	i := f.statusCalls - 1
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

type mockWallet struct {
	mock.Mock
	sent [][]byte
}

func (m *mockWallet) Authorize(ctx context.Context, identity signer.AppIdentity) (*signer.Authorization, error) {
	args := m.Called(identity)
	auth, _ := args.Get(0).(*signer.Authorization)
	return auth, args.Error(1)
}

func (m *mockWallet) Reauthorize(ctx context.Context, token string, identity signer.AppIdentity) (*signer.Authorization, error) {
	args := m.Called(token, identity)
	auth, _ := args.Get(0).(*signer.Authorization)
	return auth, args.Error(1)
}

func (m *mockWallet) SignAndSend(ctx context.Context, token string, payloads [][]byte) ([]types.Signature, error) {
	m.sent = append(m.sent, payloads...)
	args := m.Called(token, len(payloads))
	sigs, _ := args.Get(0).([]types.Signature)
	return sigs, args.Error(1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []SubmissionEvent
}

func (n *recordingNotifier) NotifySubmission(ctx context.Context, ev SubmissionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

type recordingResyncer struct {
	delays [][]time.Duration
}

func (r *recordingResyncer) ScheduleResync(delays []time.Duration) {
	r.delays = append(r.delays, delays)
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Blockhash = RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond}
	p.ConfirmInterval = 5 * time.Millisecond
	p.ConfirmDeadline = 200 * time.Millisecond
	return p
}

func confirmed() []*ledger.SignatureStatus {
	return []*ledger.SignatureStatus{nil, {Slot: 77, ConfirmationStatus: ledger.CommitmentConfirmed}}
}

// buildTransfer 构造一条引用签名者的指令
func buildTransfer(signerKey types.Pubkey) ([]message.Instruction, error) {
	return []message.Instruction{{
		ProgramID: testProgram,
		Accounts: []message.AccountMeta{
			{Pubkey: signerKey, IsSigner: true, IsWritable: true},
			{Pubkey: types.Pubkey{0x33}, IsWritable: true},
		},
		Data: []byte{1},
	}}, nil
}

func authFor(key types.Pubkey, token string) *signer.Authorization {
	return &signer.Authorization{Accounts: []types.Pubkey{key}, AuthToken: token}
}

// ===== tests =====

func TestSubmitHappyPath(t *testing.T) {
	l := &fakeLedger{statuses: confirmed()}
	w := &mockWallet{}
	w.On("Reauthorize", "tok", testIdentity).Return(authFor(walletKey, "tok"), nil)
	w.On("SignAndSend", "tok", 1).Return([]types.Signature{goodSig}, nil)

	n := &recordingNotifier{}
	rs := &recordingResyncer{}
	o := NewOrchestrator(l, w, testIdentity, testPolicy(), WithNotifier(n), WithResyncer(rs))

	res, err := o.Submit(context.Background(), Request{
		Label: "place_bet",
		Auth:  AuthCache{Token: "tok", Account: walletKey},
		Build: buildTransfer,
	})
	require.NoError(t, err)

	assert.Equal(t, StateConfirmed, res.State)
	assert.Equal(t, []State{
		StateIdle, StateBlockhashFetched, StateBuilt, StateSerialized,
		StateSimulated, StateAuthorized, StateSent, StateConfirmed,
	}, res.History)
	assert.Equal(t, goodSig, res.Signature)
	assert.Equal(t, uint64(77), res.Slot)
	assert.Equal(t, uint64(5000), res.UnitsConsumed)
	assert.False(t, res.Rebuilt)
	assert.Equal(t, AuthCache{Token: "tok", Account: walletKey}, res.Auth)

	require.Len(t, rs.delays, 1)
	assert.Equal(t, testPolicy().ResyncDelays, rs.delays[0])

	require.Len(t, n.events, 1)
	assert.Equal(t, "confirmed", n.events[0].State)
	assert.Equal(t, goodSig.String(), n.events[0].Signature)
	assert.Empty(t, n.events[0].Error)

	w.AssertNotCalled(t, "Authorize", mock.Anything)
	w.AssertExpectations(t)
}

func TestSubmitRebuildOnSignerMismatch(t *testing.T) {
	l := &fakeLedger{statuses: confirmed()}
	w := &mockWallet{}
	w.On("Authorize", testIdentity).Return(authFor(otherKey, "fresh"), nil)
	w.On("SignAndSend", "fresh", 1).Return([]types.Signature{goodSig}, nil)

	var builtFor []types.Pubkey
	build := func(k types.Pubkey) ([]message.Instruction, error) {
		builtFor = append(builtFor, k)
		return buildTransfer(k)
	}

	o := NewOrchestrator(l, w, testIdentity, testPolicy())
	res, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: build})
	require.NoError(t, err)

	assert.Equal(t, 1, l.blockhashCalls, "签名会话内不能再次获取 blockhash")
	assert.Equal(t, 1, l.simulateCalls)
	assert.True(t, res.Rebuilt)
	assert.Equal(t, []types.Pubkey{walletKey, otherKey}, builtFor)
	assert.Equal(t, otherKey, res.Signer)

	require.Len(t, w.sent, 1)
	tx, err := message.ParseWireTransaction(w.sent[0])
	require.NoError(t, err)
	assert.Equal(t, otherKey, tx.Message.FeePayer(), "发送的交易使用实际签名者")
	assert.Equal(t, testBlockhash, tx.Message.RecentBlockhash, "复用缓存的 blockhash")
	for _, s := range tx.Signatures {
		assert.True(t, s.IsZero(), "签名槽位由签名器填充")
	}
}

func TestSubmitZeroSignatureSentinel(t *testing.T) {
	l := &fakeLedger{statuses: confirmed()}
	w := &mockWallet{}
	w.On("Authorize", testIdentity).Return(authFor(walletKey, "t"), nil)
	w.On("SignAndSend", "t", 1).Return([]types.Signature{{}}, nil)

	n := &recordingNotifier{}
	o := NewOrchestrator(l, w, testIdentity, testPolicy(), WithNotifier(n))
	res, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})

	require.Error(t, err)
	assert.True(t, IsSignerError(err))
	assert.True(t, errors.Is(err, ErrZeroSignature))
	stage, ok := StageOf(err)
	assert.True(t, ok)
	assert.Equal(t, StateSent, stage)
	assert.Equal(t, StateFailed, res.State)
	assert.True(t, res.Signature.IsZero())
	assert.Equal(t, 0, l.statusCalls, "拒签后不轮询确认")

	require.Len(t, n.events, 1)
	assert.Equal(t, "SignerError", n.events[0].Kind)
	assert.Equal(t, "sent", n.events[0].Stage)
}

func TestSubmitSimulationRejected(t *testing.T) {
	l := &fakeLedger{simResult: &ledger.SimulationResult{
		Err:  map[string]any{"InstructionError": []any{0, map[string]any{"Custom": 6000}}},
		Logs: []string{"Program log: Error: BetTooSmall"},
	}}
	w := &mockWallet{}
	o := NewOrchestrator(l, w, testIdentity, testPolicy())

	res, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})
	require.Error(t, err)
	assert.True(t, IsSimulationRejected(err))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"Program log: Error: BetTooSmall"}, se.Logs)
	assert.Equal(t, StateFailed, res.State)
	w.AssertNotCalled(t, "Authorize", mock.Anything)
	w.AssertNotCalled(t, "SignAndSend", mock.Anything, mock.Anything)
}

func TestSubmitSimulateTransportErrorIsAdvisory(t *testing.T) {
	l := &fakeLedger{simErr: errors.New("connection reset"), statuses: confirmed()}
	w := &mockWallet{}
	w.On("Authorize", testIdentity).Return(authFor(walletKey, "t"), nil)
	w.On("SignAndSend", "t", 1).Return([]types.Signature{goodSig}, nil)

	o := NewOrchestrator(l, w, testIdentity, testPolicy())
	res, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, res.State)
}

func TestSubmitReauthorizeFallback(t *testing.T) {
	l := &fakeLedger{statuses: confirmed()}
	w := &mockWallet{}
	w.On("Reauthorize", "stale", testIdentity).Return(nil, signer.ErrRejected)
	w.On("Authorize", testIdentity).Return(authFor(walletKey, "new-token"), nil).Once()
	w.On("SignAndSend", "new-token", 1).Return([]types.Signature{goodSig}, nil)

	o := NewOrchestrator(l, w, testIdentity, testPolicy())
	res, err := o.Submit(context.Background(), Request{
		Auth:  AuthCache{Token: "stale", Account: walletKey},
		Build: buildTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, "new-token", res.Auth.Token)
	assert.False(t, res.Rebuilt)
	w.AssertExpectations(t)
}

func TestSubmitReauthorizeTransportErrorDoesNotPrompt(t *testing.T) {
	l := &fakeLedger{}
	w := &mockWallet{}
	w.On("Reauthorize", "cached", testIdentity).Return(nil, errors.New("dial tcp: connection refused"))

	o := NewOrchestrator(l, w, testIdentity, testPolicy())
	res, err := o.Submit(context.Background(), Request{
		Auth:  AuthCache{Token: "cached", Account: walletKey},
		Build: buildTransfer,
	})
	require.Error(t, err)
	assert.True(t, IsSignerError(err))
	assert.False(t, errors.Is(err, signer.ErrRejected))
	stage, _ := StageOf(err)
	assert.Equal(t, StateAuthorized, stage)
	assert.Equal(t, StateFailed, res.State)
	w.AssertNotCalled(t, "Authorize", mock.Anything)
	w.AssertNotCalled(t, "SignAndSend", mock.Anything, mock.Anything)
}

func TestSubmitAuthorizeRejected(t *testing.T) {
	l := &fakeLedger{}
	w := &mockWallet{}
	w.On("Authorize", testIdentity).Return(nil, signer.ErrRejected)

	o := NewOrchestrator(l, w, testIdentity, testPolicy())
	_, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})
	assert.True(t, IsSignerError(err))
	assert.True(t, errors.Is(err, signer.ErrRejected))
	stage, _ := StageOf(err)
	assert.Equal(t, StateAuthorized, stage)
}

func TestSubmitConfirmationTimeout(t *testing.T) {
	l := &fakeLedger{} // 一直查不到状态
	w := &mockWallet{}
	w.On("Authorize", testIdentity).Return(authFor(walletKey, "t"), nil)
	w.On("SignAndSend", "t", 1).Return([]types.Signature{goodSig}, nil)

	p := testPolicy()
	p.ConfirmDeadline = 30 * time.Millisecond
	rs := &recordingResyncer{}
	o := NewOrchestrator(l, w, testIdentity, p, WithResyncer(rs))

	res, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, errors.Is(err, ErrUnconfirmed))
	assert.Equal(t, StateSent, res.State, "超时是未确认，不是失败")
	assert.Equal(t, goodSig, res.Signature, "调用方可继续轮询")
	assert.Greater(t, l.statusCalls, 1)
	assert.Empty(t, rs.delays)
}

func TestSubmitOnChainError(t *testing.T) {
	l := &fakeLedger{statuses: []*ledger.SignatureStatus{
		{Slot: 80, ConfirmationStatus: ledger.CommitmentConfirmed, Err: map[string]any{"InstructionError": []any{0, "Custom"}}},
	}}
	w := &mockWallet{}
	w.On("Authorize", testIdentity).Return(authFor(walletKey, "t"), nil)
	w.On("SignAndSend", "t", 1).Return([]types.Signature{goodSig}, nil)

	o := NewOrchestrator(l, w, testIdentity, testPolicy())
	res, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})
	assert.True(t, IsOnChainError(err))
	assert.False(t, IsTimeout(err))
	assert.Equal(t, StateFailed, res.State)
}

func TestSubmitStatusErrorsKeepPolling(t *testing.T) {
	l := &fakeLedger{statusErr: errors.New("timeout")}
	w := &mockWallet{}
	w.On("Authorize", testIdentity).Return(authFor(walletKey, "t"), nil)
	w.On("SignAndSend", "t", 1).Return([]types.Signature{goodSig}, nil)

	p := testPolicy()
	p.ConfirmDeadline = 25 * time.Millisecond
	o := NewOrchestrator(l, w, testIdentity, p)
	_, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})
	assert.True(t, IsTimeout(err))
	assert.Greater(t, l.statusCalls, 1)
}

func TestSubmitBlockhashFailure(t *testing.T) {
	l := &fakeLedger{blockhashErr: errors.New("503")}
	w := &mockWallet{}
	o := NewOrchestrator(l, w, testIdentity, testPolicy())

	res, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})
	assert.Equal(t, KindTransport, KindOf(err))
	stage, _ := StageOf(err)
	assert.Equal(t, StateBlockhashFetched, stage)
	assert.Equal(t, 3, l.blockhashCalls)
	assert.Equal(t, []State{StateIdle, StateFailed}, res.History)
	w.AssertNotCalled(t, "Authorize", mock.Anything)
}

func TestSubmitBuildErrors(t *testing.T) {
	o := NewOrchestrator(&fakeLedger{}, &mockWallet{}, testIdentity, testPolicy())

	t.Run("builder 返回错误", func(t *testing.T) {
		_, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: func(types.Pubkey) ([]message.Instruction, error) {
			return nil, errors.New("market account unresolvable")
		}})
		assert.True(t, IsBuildError(err))
	})

	t.Run("builder panic", func(t *testing.T) {
		_, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: func(types.Pubkey) ([]message.Instruction, error) {
			panic("boom")
		}})
		assert.True(t, IsBuildError(err))
	})

	t.Run("没有已知签名者", func(t *testing.T) {
		_, err := o.Submit(context.Background(), Request{Build: buildTransfer})
		assert.True(t, IsBuildError(err))
		assert.True(t, errors.Is(err, ErrNoSignerKey))
	})

	t.Run("交易过大", func(t *testing.T) {
		_, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: func(k types.Pubkey) ([]message.Instruction, error) {
			return []message.Instruction{{ProgramID: testProgram, Data: make([]byte, 2000)}}, nil
		}})
		assert.True(t, IsBuildError(err))
		assert.True(t, errors.Is(err, message.ErrTooLarge))
	})
}

// blockingWallet 在 Authorize 中阻塞，模拟签名器弹窗等待用户确认
type blockingWallet struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingWallet) Authorize(ctx context.Context, identity signer.AppIdentity) (*signer.Authorization, error) {
	close(b.entered)
	<-b.release
	return nil, signer.ErrRejected
}

func (b *blockingWallet) Reauthorize(ctx context.Context, token string, identity signer.AppIdentity) (*signer.Authorization, error) {
	return nil, signer.ErrRejected
}

func (b *blockingWallet) SignAndSend(ctx context.Context, token string, payloads [][]byte) ([]types.Signature, error) {
	return nil, signer.ErrRejected
}

func TestSubmitSessionBusy(t *testing.T) {
	bw := &blockingWallet{entered: make(chan struct{}), release: make(chan struct{})}
	o := NewOrchestrator(&fakeLedger{}, bw, testIdentity, testPolicy())

	var firstErr atomic.Value
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})
		firstErr.Store(err)
	}()

	<-bw.entered
	res, err := o.Submit(context.Background(), Request{Signer: walletKey, Build: buildTransfer})
	assert.True(t, IsSessionBusy(err))
	assert.Equal(t, StateIdle, res.State)

	close(bw.release)
	<-done
	assert.True(t, IsSignerError(firstErr.Load().(error)))

	// 会话结束后可以再次提交
	_, err = o.Submit(context.Background(), Request{Build: buildTransfer})
	assert.False(t, IsSessionBusy(err))
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(10))

	fixed := RetryPolicy{InitialDelay: 50 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, fixed.Delay(5))
}

func TestRetry(t *testing.T) {
	errBusy := errors.New("node busy")

	t.Run("固定间隔", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond}, "op",
			func(context.Context) error {
				calls++
				return errBusy
			})
		assert.ErrorIs(t, err, errBusy)
		assert.Equal(t, 3, calls)
	})

	t.Run("固定间隔第二次成功", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond}, "op",
			func(context.Context) error {
				calls++
				if calls == 1 {
					return errBusy
				}
				return nil
			})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("指数退避", func(t *testing.T) {
		calls := 0
		p := RetryPolicy{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, BackoffFactor: 2}
		err := retry(context.Background(), p, "op", func(context.Context) error {
			calls++
			return errBusy
		})
		assert.ErrorIs(t, err, errBusy)
		assert.Equal(t, 4, calls)
	})

	t.Run("ctx 取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := retry(ctx, RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour}, "op", func(context.Context) error {
			calls++
			cancel()
			return errBusy
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestStageErrorMessage(t *testing.T) {
	err := stageErr(StateSent, KindSigner, ErrZeroSignature)
	assert.Equal(t, "session: SignerError failed at sent: session: signer returned all-zero signature", err.Error())
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
}
