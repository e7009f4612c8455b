package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blocto/solana-go-sdk/rpc"

	"ilowa-market-sol/internal/codec"
	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
)

// Option 账本客户端配置
type Option struct {
	Endpoints      []string      // 多个 RPC 节点，按可用性自动切换
	Commitment     string        // processed / confirmed / finalized
	RequestTimeout time.Duration // 单次请求超时
}

// Client 在多个节点之间切换，逐个节点调用 SDK 的类型化 RPC 方法。
// 节点选择由 SelectProvider 基于调用历史决定。
type Client struct {
	endpoints  []string
	clients    []*rpc.RpcClient
	commitment string
	timeout    time.Duration

	mu      sync.Mutex
	history ProviderHistory
}

func NewClient(opt Option) (*Client, error) {
	if len(opt.Endpoints) == 0 {
		return nil, errors.New("ledger: no rpc endpoints configured")
	}
	if opt.Commitment == "" {
		opt.Commitment = CommitmentConfirmed
	}
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = 10 * time.Second
	}

	clients := make([]*rpc.RpcClient, 0, len(opt.Endpoints))
	for _, endpoint := range opt.Endpoints {
		client := rpc.NewRpcClient(endpoint)
		clients = append(clients, &client)
	}

	return &Client{
		endpoints:  opt.Endpoints,
		clients:    clients,
		commitment: opt.Commitment,
		timeout:    opt.RequestTimeout,
		history:    make(ProviderHistory, len(clients)),
	}, nil
}

func (c *Client) Commitment() string {
	return c.commitment
}

// History 返回节点调用历史快照
func (c *Client) History() ProviderHistory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.clone()
}

func (c *Client) pick() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SelectProvider(c.history)
}

func (c *Client) record(index int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.history = c.history.RecordSuccess(index, time.Now())
	} else {
		c.history = c.history.RecordFailure(index, time.Now())
	}
}

// invoke 在选中的节点上执行一次 SDK 调用：
// - 传输层错误或响应无法解析：记录失败并切换节点，最多尝试所有节点各一次
// - JSON-RPC error：节点可用，直接返回 *rpc.JsonRpcError
func invoke[T any](ctx context.Context, c *Client, method string, do func(context.Context, *rpc.RpcClient) (rpc.JsonRpcResponse[T], error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 0; attempt < len(c.clients); attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		index := c.pick()
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := do(reqCtx, c.clients[index])
		cancel()

		if err == nil {
			c.record(index, true)
			if resp.Error != nil {
				return zero, resp.Error
			}
			return resp.Result, nil
		}

		c.record(index, false)
		lastErr = err
		logger.Warnf("[Ledger] %s 调用失败，切换节点: endpoint=%s, attempt=%d, err=%v",
			method, c.endpoints[index], attempt+1, err)
	}
	return zero, fmt.Errorf("ledger: %s failed on all %d endpoints: %w", method, len(c.clients), lastErr)
}

// GetLatestBlockhash 获取最新 blockhash
func (c *Client) GetLatestBlockhash(ctx context.Context) (LatestBlockhash, error) {
	cfg := rpc.GetLatestBlockhashConfig{Commitment: rpc.Commitment(c.commitment)}
	res, err := invoke(ctx, c, "getLatestBlockhash",
		func(ctx context.Context, client *rpc.RpcClient) (rpc.JsonRpcResponse[rpc.ValueWithContext[rpc.GetLatestBlockhashValue]], error) {
			return client.GetLatestBlockhashWithConfig(ctx, cfg)
		})
	if err != nil {
		return LatestBlockhash{}, err
	}
	hash, err := types.HashFromBase58(res.Value.Blockhash)
	if err != nil {
		return LatestBlockhash{}, fmt.Errorf("ledger: invalid blockhash %q: %w", res.Value.Blockhash, err)
	}
	return LatestBlockhash{Blockhash: hash, LastValidBlockHeight: res.Value.LatestValidBlockHeight}, nil
}

// SimulateTransaction 预执行交易（base64 编码），不校验签名
func (c *Client) SimulateTransaction(ctx context.Context, payload string) (*SimulationResult, error) {
	cfg := rpc.SimulateTransactionConfig{
		Encoding:   rpc.SimulateTransactionEncodingBase64,
		Commitment: rpc.Commitment(c.commitment),
	}
	res, err := invoke(ctx, c, "simulateTransaction",
		func(ctx context.Context, client *rpc.RpcClient) (rpc.JsonRpcResponse[rpc.ValueWithContext[rpc.SimulateTransactionValue]], error) {
			return client.SimulateTransactionWithConfig(ctx, payload, cfg)
		})
	if err != nil {
		return nil, err
	}
	sim := &SimulationResult{Err: res.Value.Err, Logs: res.Value.Logs}
	if res.Value.UnitConsumed != nil {
		sim.UnitsConsumed = *res.Value.UnitConsumed
	}
	return sim, nil
}

// GetSignatureStatus 查询单个签名状态，节点尚未见到该交易时返回 nil
func (c *Client) GetSignatureStatus(ctx context.Context, sig types.Signature) (*SignatureStatus, error) {
	res, err := invoke(ctx, c, "getSignatureStatuses",
		func(ctx context.Context, client *rpc.RpcClient) (rpc.JsonRpcResponse[rpc.ValueWithContext[rpc.SignatureStatuses]], error) {
			return client.GetSignatureStatusesWithConfig(ctx, []string{sig.String()}, rpc.GetSignatureStatusesConfig{})
		})
	if err != nil {
		return nil, err
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return nil, nil
	}
	v := res.Value[0]
	status := &SignatureStatus{
		Slot:          v.Slot,
		Confirmations: v.Confirmations,
		Err:           v.Err,
	}
	if v.ConfirmationStatus != nil {
		status.ConfirmationStatus = string(*v.ConfirmationStatus)
	}
	return status, nil
}

// GetAccountInfo 读取单个账户原始数据，账户不存在时返回 nil
func (c *Client) GetAccountInfo(ctx context.Context, address types.Pubkey) (*types.AccountData, error) {
	cfg := rpc.GetAccountInfoConfig{
		Commitment: rpc.Commitment(c.commitment),
		Encoding:   rpc.AccountEncodingBase64,
	}
	res, err := invoke(ctx, c, "getAccountInfo",
		func(ctx context.Context, client *rpc.RpcClient) (rpc.JsonRpcResponse[rpc.ValueWithContext[rpc.AccountInfo]], error) {
			return client.GetAccountInfoWithConfig(ctx, address.String(), cfg)
		})
	if err != nil {
		return nil, err
	}
	// value 为 null 时 SDK 解析为零值
	if res.Value.Data == nil {
		return nil, nil
	}
	acc, err := toAccountData(address, res.Value, res.Context.Slot)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// GetProgramAccounts 枚举 owner 为 programID 且前 8 字节等于 discriminator 的所有账户，
// 返回快照所在 slot（每个账户的 Slot 同为该值）。单个账户数据无法解析时跳过并记录日志。
func (c *Client) GetProgramAccounts(ctx context.Context, programID types.Pubkey, discriminator [8]byte) ([]types.AccountData, uint64, error) {
	cfg := rpc.GetProgramAccountsConfig{
		Encoding:   rpc.AccountEncodingBase64,
		Commitment: rpc.Commitment(c.commitment),
		Filters: []rpc.GetProgramAccountsConfigFilter{{
			MemCmp: &rpc.GetProgramAccountsConfigFilterMemCmp{
				Offset: 0,
				Bytes:  codec.Base58Encode(discriminator[:]),
			},
		}},
	}
	res, err := invoke(ctx, c, "getProgramAccounts",
		func(ctx context.Context, client *rpc.RpcClient) (rpc.JsonRpcResponse[rpc.GetProgramAccountsWithContext], error) {
			return client.GetProgramAccountsWithContextAndConfig(ctx, programID.String(), cfg)
		})
	if err != nil {
		return nil, 0, err
	}

	slot := res.Context.Slot
	accounts := make([]types.AccountData, 0, len(res.Value))
	for _, item := range res.Value {
		address, err := types.TryPubkeyFromBase58(item.Pubkey)
		if err != nil {
			logger.Warnf("[Ledger] 跳过无效账户地址: %q, err=%v", item.Pubkey, err)
			continue
		}
		acc, err := toAccountData(address, item.Account, slot)
		if err != nil {
			logger.Warnf("[Ledger] 跳过无法解析的账户数据: account=%s, err=%v", address, err)
			continue
		}
		accounts = append(accounts, acc)
	}
	return accounts, slot, nil
}

// toAccountData base64 编码下 data 为 [内容, "base64"]
func toAccountData(address types.Pubkey, info rpc.AccountInfo, slot uint64) (types.AccountData, error) {
	fields, ok := info.Data.([]any)
	if !ok || len(fields) == 0 {
		return types.AccountData{}, fmt.Errorf("unexpected account data field %T", info.Data)
	}
	if len(fields) > 1 && fields[1] != string(rpc.AccountEncodingBase64) {
		return types.AccountData{}, fmt.Errorf("unexpected data encoding %v", fields[1])
	}
	raw, ok := fields[0].(string)
	if !ok {
		return types.AccountData{}, fmt.Errorf("unexpected account data %T", fields[0])
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return types.AccountData{}, fmt.Errorf("decode account data: %w", err)
	}
	acc := types.AccountData{Address: address, Data: data, Slot: slot}
	if info.Owner != "" {
		if owner, err := types.TryPubkeyFromBase58(info.Owner); err == nil {
			acc.Owner = owner
		}
	}
	return acc, nil
}
