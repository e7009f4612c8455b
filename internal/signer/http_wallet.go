package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zeromicro/go-zero/core/jsonx"
	"github.com/zeromicro/go-zero/rest/httpc"

	"ilowa-market-sol/internal/types"
	"ilowa-market-sol/pkg/logger"
)

// HTTPWallet 通过 JSON HTTP 桥接与远程钱包通信：
//
//	POST /authorize     {identity}              -> {accounts, auth_token}
//	POST /reauthorize   {auth_token, identity}  -> {accounts, auth_token}
//	POST /sign_and_send {auth_token, payloads}  -> {signatures}
//
// 账户为 base58，交易与签名为 base64。HTTP 401/403 视为拒绝。
type HTTPWallet struct {
	endpoint string
}

func NewHTTPWallet(endpoint string) *HTTPWallet {
	return &HTTPWallet{endpoint: strings.TrimRight(endpoint, "/")}
}

type authorizeRequest struct {
	AuthToken string      `json:"auth_token,omitempty"`
	Identity  AppIdentity `json:"identity"`
}

type authorizeResponse struct {
	Accounts  []string `json:"accounts"`
	AuthToken string   `json:"auth_token"`
}

type signAndSendRequest struct {
	AuthToken string   `json:"auth_token"`
	Payloads  []string `json:"payloads"`
}

type signAndSendResponse struct {
	Signatures []string `json:"signatures"`
}

func (w *HTTPWallet) Authorize(ctx context.Context, identity AppIdentity) (*Authorization, error) {
	return w.authorize(ctx, "/authorize", authorizeRequest{Identity: identity})
}

func (w *HTTPWallet) Reauthorize(ctx context.Context, authToken string, identity AppIdentity) (*Authorization, error) {
	if authToken == "" {
		return nil, fmt.Errorf("%w: empty auth token", ErrRejected)
	}
	return w.authorize(ctx, "/reauthorize", authorizeRequest{AuthToken: authToken, Identity: identity})
}

func (w *HTTPWallet) authorize(ctx context.Context, path string, req authorizeRequest) (*Authorization, error) {
	var resp authorizeResponse
	if err := w.post(ctx, path, req, &resp); err != nil {
		return nil, err
	}

	auth := &Authorization{AuthToken: resp.AuthToken, Accounts: make([]types.Pubkey, 0, len(resp.Accounts))}
	for _, s := range resp.Accounts {
		key, err := types.TryPubkeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("signer: invalid account in %s response: %w", path, err)
		}
		auth.Accounts = append(auth.Accounts, key)
	}
	if len(auth.Accounts) == 0 {
		return nil, fmt.Errorf("%w: no accounts authorized", ErrRejected)
	}
	return auth, nil
}

func (w *HTTPWallet) SignAndSend(ctx context.Context, authToken string, payloads [][]byte) ([]types.Signature, error) {
	req := signAndSendRequest{AuthToken: authToken, Payloads: make([]string, len(payloads))}
	for i, p := range payloads {
		req.Payloads[i] = base64.StdEncoding.EncodeToString(p)
	}

	var resp signAndSendResponse
	if err := w.post(ctx, "/sign_and_send", req, &resp); err != nil {
		return nil, err
	}

	sigs := make([]types.Signature, 0, len(resp.Signatures))
	for _, s := range resp.Signatures {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("signer: decode signature: %w", err)
		}
		sig, err := types.SignatureFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("signer: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (w *HTTPWallet) post(ctx context.Context, path string, body, out any) error {
	payload, err := jsonx.Marshal(body)
	if err != nil {
		return fmt.Errorf("signer: marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("signer: %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpc.DoRequest(req)
	if err != nil {
		return fmt.Errorf("signer: %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logger.Warnf("[Signer] %s 被拒绝: status=%d", path, resp.StatusCode)
		return fmt.Errorf("%w: %s status %d", ErrRejected, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("signer: %s unexpected status %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("signer: read %s response: %w", path, err)
	}
	if err := jsonx.Unmarshal(data, out); err != nil {
		return fmt.Errorf("signer: parse %s response: %w", path, err)
	}
	return nil
}
