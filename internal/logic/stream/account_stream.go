package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/zeromicro/go-zero/core/logx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"ilowa-market-sol/internal/logic/decoder"
	"ilowa-market-sol/internal/types"
)

// MarketSink 接收解码后的账户变化（市场缓存）
type MarketSink interface {
	Upsert(rec decoder.Record, slot uint64) bool
	Remove(addr types.Pubkey, slot uint64) bool
}

// ChangeNotifier 缓存确实发生变化时回调
type ChangeNotifier interface {
	NotifyChanged(changed []decoder.Record, removed []types.Pubkey)
}

type StreamOption struct {
	Endpoint   string
	XToken     string
	Insecure   bool     // 明文连接，仅用于本地节点
	Owners     []string // 订阅的账户 owner（程序 id）
	Commitment string

	StreamPingIntervalSec    int // 应用层 ping 间隔
	KeepalivePingIntervalSec int
	KeepalivePingTimeoutSec  int
	InitialWindowSize        int
	InitialConnWindowSize    int
	MaxCallSendMsgSize       int
	MaxCallRecvMsgSize       int
	ReconnectIntervalSec     int
	ConnectTimeoutSec        int
	SendTimeoutSec           int
	IdleTimeoutSec           int // 超过该时长没有收到任何消息（含 pong）则重连
}

// AccountStreamManager Geyser 账户订阅：按 owner 过滤，每条推送经解码后写入缓存
type AccountStreamManager struct {
	mu                sync.Mutex
	conn              *grpc.ClientConn
	client            pb.GeyserClient
	stream            pb.Geyser_SubscribeClient
	stopped           bool
	reconnectAttempts int
	connCtx           context.Context
	connCancel        context.CancelFunc

	opt      StreamOption
	sink     MarketSink
	notifier ChangeNotifier
	logx.Logger
}

func NewAccountStreamManager(opt StreamOption, sink MarketSink, notifier ChangeNotifier) (*AccountStreamManager, error) {
	if len(opt.Owners) == 0 {
		return nil, errors.New("account stream: no owner to subscribe")
	}

	creds := credentials.NewTLS(&tls.Config{})
	if opt.Insecure {
		creds = insecure.NewCredentials()
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), secOr(opt.ConnectTimeoutSec, 10))
	defer cancel()

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                secOr(opt.KeepalivePingIntervalSec, 30),
			Timeout:             secOr(opt.KeepalivePingTimeoutSec, 10),
			PermitWithoutStream: true,
		}),
	}
	if opt.InitialWindowSize > 0 {
		dialOpts = append(dialOpts, grpc.WithInitialWindowSize(int32(opt.InitialWindowSize)))
	}
	if opt.InitialConnWindowSize > 0 {
		dialOpts = append(dialOpts, grpc.WithInitialConnWindowSize(int32(opt.InitialConnWindowSize)))
	}
	if opt.MaxCallSendMsgSize > 0 && opt.MaxCallRecvMsgSize > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(opt.MaxCallSendMsgSize),
			grpc.MaxCallRecvMsgSize(opt.MaxCallRecvMsgSize),
		))
	}

	conn, err := grpc.DialContext(dialCtx, opt.Endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &AccountStreamManager{
		conn:     conn,
		client:   pb.NewGeyserClient(conn),
		opt:      opt,
		sink:     sink,
		notifier: notifier,
		Logger:   logx.WithContext(context.Background()).WithFields(logx.Field("service", "account_stream")),
	}, nil
}

func (m *AccountStreamManager) Start() {
	m.mustConnect()
}

func (m *AccountStreamManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
	}
}

// mustConnect 循环直到连接成功或被停止
func (m *AccountStreamManager) mustConnect() {
	interval := secOr(m.opt.ReconnectIntervalSec, 3)
	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		attempts := m.reconnectAttempts
		m.reconnectAttempts++
		m.mu.Unlock()

		if attempts > 0 {
			if attempts > 3 {
				time.Sleep(interval * 2)
			} else {
				time.Sleep(interval)
			}
		}
		m.Infof("[AccountStream] connecting, attempt %d", attempts+1)
		err := m.connect()
		if err == nil {
			return
		}
		m.Errorf("[AccountStream] connect failed: %v, will retry", err)
	}
}

func buildSubscribeRequest(owners []string, commitment string) *pb.SubscribeRequest {
	level := pb.CommitmentLevel_CONFIRMED
	switch commitment {
	case "processed":
		level = pb.CommitmentLevel_PROCESSED
	case "finalized":
		level = pb.CommitmentLevel_FINALIZED
	}
	return &pb.SubscribeRequest{
		Accounts: map[string]*pb.SubscribeRequestFilterAccounts{
			"markets": {Owner: owners},
		},
		Commitment: &level,
	}
}

// connect 只尝试一次连接
func (m *AccountStreamManager) connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return errors.New("manager is stopped")
	}

	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.connCtx, m.connCancel = context.WithCancel(context.Background())

	metaCtx := metadata.NewOutgoingContext(m.connCtx, metadata.New(map[string]string{"x-token": m.opt.XToken}))
	stream, err := m.client.Subscribe(metaCtx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	req := buildSubscribeRequest(m.opt.Owners, m.opt.Commitment)
	if err = sendWithTimeout(m.connCtx, stream.Send, req, secOr(m.opt.SendTimeoutSec, 5)); err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}

	m.stream = stream
	m.reconnectAttempts = 0
	m.Infof("[AccountStream] subscribed, owners=%v", m.opt.Owners)

	go m.pingLoop(m.connCtx, stream)
	go m.recvLoop(m.connCtx, stream)
	return nil
}

func (m *AccountStreamManager) recvLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	idleTimeout := secOr(m.opt.IdleTimeoutSec, 60)
	last := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}

		update, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				m.Infof("[AccountStream] stream closed by server (EOF), will reconnect")
				m.reconnect()
				return
			}
			m.Errorf("[AccountStream] stream error: %v", err)
			if time.Since(last) > idleTimeout {
				m.Errorf("[AccountStream] idle for %v, reconnecting", idleTimeout)
				m.reconnect()
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		last = time.Now()

		if u, ok := update.GetUpdateOneof().(*pb.SubscribeUpdate_Account); ok {
			m.handleAccount(u.Account)
		}
	}
}

// handleAccount 解码单条推送并写入缓存；panic 只影响当前记录
func (m *AccountStreamManager) handleAccount(u *pb.SubscribeUpdateAccount) {
	defer func() {
		if r := recover(); r != nil {
			m.Errorf("[AccountStream] handle account panic: %v, stack=%s", r, debug.Stack())
		}
	}()

	changed, removed := applyAccountUpdate(m.sink, u)
	if m.notifier == nil || (len(changed) == 0 && len(removed) == 0) {
		return
	}
	m.notifier.NotifyChanged(changed, removed)
}

// applyAccountUpdate 将一条 Geyser 账户推送应用到缓存：
// - 账户被关闭（lamports 为 0 或数据为空）时移除
// - 未知布局忽略；解码失败记录日志后忽略
func applyAccountUpdate(sink MarketSink, u *pb.SubscribeUpdateAccount) (changed []decoder.Record, removed []types.Pubkey) {
	info := u.GetAccount()
	if info == nil {
		return nil, nil
	}
	addr, err := types.PubkeyFromBytes(info.GetPubkey())
	if err != nil {
		logx.Errorf("[AccountStream] invalid pubkey in update: %v", err)
		return nil, nil
	}
	slot := u.GetSlot()

	if info.GetLamports() == 0 || len(info.GetData()) == 0 {
		if sink.Remove(addr, slot) {
			removed = append(removed, addr)
		}
		return changed, removed
	}

	rec, err := decoder.Decode(addr, info.GetData())
	if err != nil {
		logx.Errorf("[AccountStream] drop undecodable account: account=%s, slot=%d, err=%v", addr, slot, err)
		return nil, nil
	}
	if rec.Kind == decoder.KindUnknown {
		return nil, nil
	}
	if sink.Upsert(rec, slot) {
		changed = append(changed, rec)
	}
	return changed, removed
}

// sendWithTimeout 带超时的 Send
func sendWithTimeout[T any](ctx context.Context, sendFunc func(T) error, req T, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sendFunc(req)
	}()

	select {
	case <-timeoutCtx.Done():
		return timeoutCtx.Err()
	case err := <-done:
		return err
	}
}

// pingLoop 应用层心跳，服务端回 pong 用于判断连接存活
func (m *AccountStreamManager) pingLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	ticker := time.NewTicker(secOr(m.opt.StreamPingIntervalSec, 15))
	defer ticker.Stop()

	var id int32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id++
			req := &pb.SubscribeRequest{Ping: &pb.SubscribeRequestPing{Id: id}}
			if err := sendWithTimeout(ctx, stream.Send, req, secOr(m.opt.SendTimeoutSec, 5)); err != nil {
				m.Errorf("[AccountStream] ping failed: %v", err)
			}
		}
	}
}

func (m *AccountStreamManager) reconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.mu.Unlock()

	go m.mustConnect()
}

func secOr(sec, def int) time.Duration {
	if sec <= 0 {
		sec = def
	}
	return time.Duration(sec) * time.Second
}
