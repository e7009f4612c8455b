package signer

import (
	"context"
	"errors"

	"ilowa-market-sol/internal/types"
)

// ErrRejected 签名器拒绝授权或拒绝签名（用户取消、token 失效等）
var ErrRejected = errors.New("signer: request rejected")

// AppIdentity 向签名器声明的应用身份
type AppIdentity struct {
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Icon    string `json:"icon,omitempty"`
	Cluster string `json:"cluster,omitempty"`
}

// Authorization authorize / reauthorize 的返回
type Authorization struct {
	Accounts  []types.Pubkey
	AuthToken string
}

// Signer 签名器实际使用的账户（第一个账户）
func (a *Authorization) Signer() (types.Pubkey, bool) {
	if a == nil || len(a.Accounts) == 0 {
		return types.Pubkey{}, false
	}
	return a.Accounts[0], true
}

// Wallet 外部签名器协议。私钥只存在于签名器一侧。
type Wallet interface {
	Authorize(ctx context.Context, identity AppIdentity) (*Authorization, error)
	Reauthorize(ctx context.Context, authToken string, identity AppIdentity) (*Authorization, error)
	// SignAndSend 签名并广播，返回与 payloads 一一对应的 64 字节签名
	SignAndSend(ctx context.Context, authToken string, payloads [][]byte) ([]types.Signature, error)
}
