package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"ilowa-market-sol/internal/ledger"
	"ilowa-market-sol/internal/logic/message"
	"ilowa-market-sol/internal/signer"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
)

// Ledger 会话需要的账本 RPC
type Ledger interface {
	GetLatestBlockhash(ctx context.Context) (ledger.LatestBlockhash, error)
	SimulateTransaction(ctx context.Context, payload string) (*ledger.SimulationResult, error)
	GetSignatureStatus(ctx context.Context, sig types.Signature) (*ledger.SignatureStatus, error)
}

// Notifier 会话结束后的结果通知（可选）
type Notifier interface {
	NotifySubmission(ctx context.Context, ev SubmissionEvent) error
}

// Resyncer 确认后调度读侧缓存重同步（可选）
type Resyncer interface {
	ScheduleResync(delays []time.Duration)
}

// BuildFunc 由调用方提供：根据签名者公钥构造指令列表
type BuildFunc func(signerKey types.Pubkey) ([]message.Instruction, error)

// AuthCache 调用方持有的授权缓存，用于避免重复弹出授权确认
type AuthCache struct {
	Token   string
	Account types.Pubkey
}

// Request 一次提交请求
type Request struct {
	Label  string       // 日志与通知使用的业务标签
	Signer types.Pubkey // 预期签名者，为空时取 Auth.Account
	Auth   AuthCache
	Build  BuildFunc
}

// Result 会话结果。出错时同样返回，便于诊断与超时后重新轮询。
type Result struct {
	Signature     types.Signature
	State         State
	History       []State
	Signer        types.Pubkey
	Slot          uint64
	Logs          []string
	UnitsConsumed uint64
	Rebuilt       bool      // 签名者与预期不一致，使用缓存的 blockhash 重新构造
	Auth          AuthCache // 最新授权缓存，由调用方保存
}

// SubmissionEvent 通知载荷
type SubmissionEvent struct {
	Label     string
	Signature string
	Signer    string
	State     string
	Stage     string
	Kind      string
	Error     string
	Slot      uint64
	Rebuilt   bool
	At        time.Time
}

// Orchestrator 签名会话编排器：同一时刻只允许一个会话
type Orchestrator struct {
	ledger   Ledger
	wallet   signer.Wallet
	identity signer.AppIdentity
	policy   Policy
	notifier Notifier
	resyncer Resyncer

	busy atomic.Bool
}

type Option func(*Orchestrator)

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithResyncer(r Resyncer) Option {
	return func(o *Orchestrator) { o.resyncer = r }
}

func NewOrchestrator(l Ledger, w signer.Wallet, identity signer.AppIdentity, policy Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:   l,
		wallet:   w,
		identity: identity,
		policy:   policy,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit 执行一次完整的签名提交流程：
//  1. 获取 blockhash（在任何签名器交互之前完成）
//  2. 以预期签名者构造并序列化交易
//  3. 预执行：程序报错则中止；调用本身失败只记录日志
//  4. 签名器握手：优先 reauthorize，被拒绝后回退 authorize
//  5. 实际签名者与预期不同时，用缓存的 blockhash 重新构造
//  6. 签名并发送：全零签名视为签名器拒绝
//  7. 在截止时间内轮询确认
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Result, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return &Result{State: StateIdle, History: []State{StateIdle}},
			stageErr(StateIdle, KindSessionBusy, ErrSessionBusy)
	}
	defer o.busy.Store(false)

	r := &run{
		o:   o,
		req: req,
		res: &Result{State: StateIdle, History: []State{StateIdle}, Auth: req.Auth},
	}
	start := time.Now()
	err := r.execute(ctx)

	if err != nil {
		logger.Errorf("[Orchestrator] 提交失败: label=%s, state=%s, elapsed=%v, err=%v",
			req.Label, r.res.State, time.Since(start), err)
	} else {
		logger.Infof("[Orchestrator] 提交成功: label=%s, sig=%s, slot=%d, elapsed=%v",
			req.Label, r.res.Signature, r.res.Slot, time.Since(start))
	}

	o.notify(ctx, r.res, req.Label, err)
	return r.res, err
}

type run struct {
	o         *Orchestrator
	req       Request
	res       *Result
	blockhash types.Hash
	payload   []byte
}

func (r *run) advance(s State) {
	r.res.State = s
	r.res.History = append(r.res.History, s)
}

// fail 终止会话；确认超时不算失败，状态保持在 Sent
func (r *run) fail(se *StageError) error {
	if se.Kind != KindConfirmationTimeout {
		r.advance(StateFailed)
	}
	return se
}

func (r *run) execute(ctx context.Context) error {
	o := r.o

	// 1. blockhash
	err := retry(ctx, o.policy.Blockhash, "getLatestBlockhash", func(ctx context.Context) error {
		bh, err := o.ledger.GetLatestBlockhash(ctx)
		if err != nil {
			return err
		}
		r.blockhash = bh.Blockhash
		return nil
	})
	if err != nil {
		return r.fail(stageErr(StateBlockhashFetched, KindTransport, err))
	}
	r.advance(StateBlockhashFetched)

	// 2. build + serialize
	assumed := r.req.Signer
	if assumed.IsZero() {
		assumed = r.req.Auth.Account
	}
	if assumed.IsZero() {
		return r.fail(stageErr(StateBuilt, KindBuild, ErrNoSignerKey))
	}

	msg, se := r.compile(assumed)
	if se != nil {
		return r.fail(se)
	}
	r.advance(StateBuilt)

	if r.payload, se = r.serialize(msg); se != nil {
		return r.fail(se)
	}
	r.advance(StateSerialized)

	// 3. simulate
	if se = r.simulate(ctx); se != nil {
		return r.fail(se)
	}
	r.advance(StateSimulated)

	// 4. authorize
	actual, se := r.authorize(ctx)
	if se != nil {
		return r.fail(se)
	}
	r.res.Signer = actual
	r.advance(StateAuthorized)

	// 5. 签名者变化：复用 blockhash 重新构造，不发起新的网络请求
	if actual != assumed {
		logger.Infof("[Orchestrator] 签名者与预期不一致，重新构造交易: assumed=%s, actual=%s", assumed, actual)
		if msg, se = r.compile(actual); se != nil {
			return r.fail(se)
		}
		if r.payload, se = r.serialize(msg); se != nil {
			return r.fail(se)
		}
		r.res.Rebuilt = true
	}

	// 6. sign and send
	sig, se := r.signAndSend(ctx)
	if se != nil {
		return r.fail(se)
	}
	r.res.Signature = sig
	r.advance(StateSent)

	// 7. confirm
	if se = r.confirm(ctx, sig); se != nil {
		return r.fail(se)
	}
	r.advance(StateConfirmed)

	if o.resyncer != nil && len(o.policy.ResyncDelays) > 0 {
		o.resyncer.ScheduleResync(o.policy.ResyncDelays)
	}
	return nil
}

func (r *run) compile(signerKey types.Pubkey) (*message.Message, *StageError) {
	instrs, err := safeBuild(r.req.Build, signerKey)
	if err != nil {
		return nil, stageErr(StateBuilt, KindBuild, err)
	}
	msg, err := message.Compile(signerKey, instrs, r.blockhash)
	if err != nil {
		return nil, stageErr(StateBuilt, KindBuild, err)
	}
	return msg, nil
}

func safeBuild(build BuildFunc, signerKey types.Pubkey) (instrs []message.Instruction, err error) {
	if build == nil {
		return nil, fmt.Errorf("session: no instruction builder")
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("[Orchestrator] instruction builder panic: %v, stack=%s", rec, debug.Stack())
			err = fmt.Errorf("session: instruction builder panic: %v", rec)
		}
	}()
	return build(signerKey)
}

func (r *run) serialize(msg *message.Message) ([]byte, *StageError) {
	raw, err := message.NewWireTransaction(msg).Serialize()
	if err != nil {
		return nil, stageErr(StateSerialized, KindBuild, err)
	}
	return raw, nil
}

// simulate 预执行只作为建议：传输失败继续，程序报错中止
func (r *run) simulate(ctx context.Context) *StageError {
	sim, err := r.o.ledger.SimulateTransaction(ctx, base64.StdEncoding.EncodeToString(r.payload))
	if err != nil {
		logger.Warnf("[Orchestrator] 预执行调用失败，继续流程: label=%s, err=%v", r.req.Label, err)
		return nil
	}
	if sim == nil {
		return nil
	}
	r.res.Logs = sim.Logs
	r.res.UnitsConsumed = sim.UnitsConsumed
	if sim.Failed() {
		return &StageError{
			Stage: StateSimulated,
			Kind:  KindSimulationRejected,
			Err:   fmt.Errorf("program error: %s", ledger.FormatErr(sim.Err)),
			Logs:  sim.Logs,
		}
	}
	return nil
}

func (r *run) authorize(ctx context.Context) (types.Pubkey, *StageError) {
	var (
		auth *signer.Authorization
		err  error
	)

	if r.req.Auth.Token != "" {
		auth, err = r.o.wallet.Reauthorize(ctx, r.req.Auth.Token, r.o.identity)
		switch {
		case err == nil:
		case errors.Is(err, signer.ErrRejected):
			// 只有 token 被拒绝才重新弹出授权
			logger.Warnf("[Orchestrator] reauthorize 被拒绝，回退 authorize: err=%v", err)
			auth = nil
		default:
			return types.Pubkey{}, stageErr(StateAuthorized, KindSigner, fmt.Errorf("reauthorize: %w", err))
		}
	}
	if auth == nil {
		if auth, err = r.o.wallet.Authorize(ctx, r.o.identity); err != nil {
			return types.Pubkey{}, stageErr(StateAuthorized, KindSigner, err)
		}
	}

	actual, ok := auth.Signer()
	if !ok {
		return types.Pubkey{}, stageErr(StateAuthorized, KindSigner, ErrNoAccounts)
	}
	r.res.Auth = AuthCache{Token: auth.AuthToken, Account: actual}
	return actual, nil
}

func (r *run) signAndSend(ctx context.Context) (types.Signature, *StageError) {
	sigs, err := r.o.wallet.SignAndSend(ctx, r.res.Auth.Token, [][]byte{r.payload})
	if err != nil {
		return types.Signature{}, stageErr(StateSent, KindSigner, err)
	}
	if len(sigs) == 0 {
		return types.Signature{}, stageErr(StateSent, KindSigner, ErrNoSignature)
	}
	// 全零签名：签名器自身预执行失败后拒签
	if sigs[0].IsZero() {
		return types.Signature{}, stageErr(StateSent, KindSigner, ErrZeroSignature)
	}
	return sigs[0], nil
}

// confirm 固定间隔轮询签名状态，直到终态或截止时间
func (r *run) confirm(ctx context.Context, sig types.Signature) *StageError {
	p := r.o.policy
	interval := p.ConfirmInterval
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.NewTimer(p.ConfirmDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := r.o.ledger.GetSignatureStatus(ctx, sig)
		switch {
		case err != nil:
			logger.Warnf("[Orchestrator] 查询签名状态失败: sig=%s, err=%v", sig, err)
		case status != nil && status.Err != nil:
			return stageErr(StateConfirmed, KindOnChain,
				fmt.Errorf("transaction %s failed on chain: %s", sig, ledger.FormatErr(status.Err)))
		case status.Reached(p.Commitment):
			r.res.Slot = status.Slot
			return nil
		}

		select {
		case <-ctx.Done():
			return stageErr(StateConfirmed, KindConfirmationTimeout, fmt.Errorf("%w: %v", ErrUnconfirmed, ctx.Err()))
		case <-deadline.C:
			return stageErr(StateConfirmed, KindConfirmationTimeout, ErrUnconfirmed)
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) notify(ctx context.Context, res *Result, label string, err error) {
	if o.notifier == nil {
		return
	}

	ev := SubmissionEvent{
		Label:   label,
		State:   res.State.String(),
		Slot:    res.Slot,
		Rebuilt: res.Rebuilt,
		At:      time.Now(),
	}
	if !res.Signature.IsZero() {
		ev.Signature = res.Signature.String()
	}
	if !res.Signer.IsZero() {
		ev.Signer = res.Signer.String()
	}
	if err != nil {
		ev.Error = err.Error()
		ev.Kind = KindOf(err).String()
		if stage, ok := StageOf(err); ok {
			ev.Stage = stage.String()
		}
	}

	if nerr := o.notifier.NotifySubmission(context.WithoutCancel(ctx), ev); nerr != nil {
		logger.Warnf("[Orchestrator] 发送提交通知失败: label=%s, err=%v", label, nerr)
	}
}
