// Package walletclient calls the operator wallet's open-platform gateway to
// query account balance. Requests are signed RSA2 (SHA256withRSA); the
// canonical form mirrors the wallet's own merchant-facing signing scheme so
// the same credential keys serve both directions.
package walletclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qiupay/gateway/internal/circuitbreaker"
	"github.com/qiupay/gateway/internal/httputil"
	"github.com/qiupay/gateway/internal/money"
	"github.com/qiupay/gateway/internal/rpcutil"
	"github.com/qiupay/gateway/internal/signing"
)

const balanceQueryMethod = "alipay.data.bill.balance.query"

// Balance is the parsed result of a balance.query call, in the settlement
// asset's integer-cents representation.
type Balance struct {
	Total     money.Money
	Available money.Money
	Freeze    money.Money
}

// Client queries a single credential's wallet balance over the operator's
// open-platform gateway.
type Client struct {
	httpClient *http.Client
	breaker    *circuitbreaker.Manager
	signer     *signing.RSA2Signer

	gatewayURL string
	appID      string
	signType   string
	charset    string
	version    string
}

// Config configures a Client for one credential.
type Config struct {
	GatewayURL string
	AppID      string
	SignType   string // "RSA2"
	Charset    string // "utf-8"
	Version    string // "1.0"
	Timeout    time.Duration

	PrivateKeyPEM string // application's own private key (PEM or bare base64)
	PublicKeyPEM  string // wallet gateway's public key (PEM or bare base64)
}

// New constructs a Client for a single credential, loading and validating
// its RSA2 key pair eagerly so configuration errors surface at wiring time
// rather than on the first poll.
func New(cfg Config, breaker *circuitbreaker.Manager) (*Client, error) {
	signer, err := signing.NewRSA2Signer(cfg.PrivateKeyPEM, cfg.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("walletclient: %w", err)
	}

	return &Client{
		httpClient: httputil.NewClient(cfg.Timeout),
		breaker:    breaker,
		signer:     signer,
		gatewayURL: cfg.GatewayURL,
		appID:      cfg.AppID,
		signType:   cfg.SignType,
		charset:    cfg.Charset,
		version:    cfg.Version,
	}, nil
}

// QueryBalance calls balance.query and returns the operator's current
// wallet balance, wrapped in a circuit breaker and bounded retry.
func (c *Client) QueryBalance(ctx context.Context) (Balance, error) {
	return rpcutil.WithRetry(ctx, func() (Balance, error) {
		result, err := c.breaker.Execute(circuitbreaker.ServiceWallet, func() (interface{}, error) {
			return c.queryBalanceOnce(ctx)
		})
		if err != nil {
			return Balance{}, err
		}
		return result.(Balance), nil
	})
}

func (c *Client) queryBalanceOnce(ctx context.Context) (Balance, error) {
	params := c.commonParams(balanceQueryMethod)
	params["biz_content"] = "{}"

	sign, err := c.signer.Sign(params)
	if err != nil {
		return Balance{}, fmt.Errorf("walletclient: sign request: %w", err)
	}
	params["sign"] = sign

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Balance{}, fmt.Errorf("walletclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Balance{}, fmt.Errorf("walletclient: request balance.query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Balance{}, fmt.Errorf("walletclient: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Balance{}, fmt.Errorf("walletclient: balance.query http %d: %s", resp.StatusCode, string(body))
	}

	return parseBalanceResponse(body)
}

func (c *Client) commonParams(method string) map[string]string {
	return map[string]string{
		"app_id":    c.appID,
		"method":    method,
		"charset":   c.charset,
		"sign_type": c.signType,
		"timestamp": time.Now().Format("2006-01-02 15:04:05"),
		"version":   c.version,
	}
}

// balanceQueryResult mirrors the inner response object of the wallet
// gateway's reply, the value under "<method_with_underscores>_response" in
// {"<method_with_underscores>_response": {...}, "sign": "..."}.
type balanceQueryResult struct {
	Code      string `json:"code"`
	Msg       string `json:"msg"`
	SubMsg    string `json:"sub_msg"`
	Total     string `json:"total_amount"`
	Available string `json:"available_amount"`
	Freeze    string `json:"freeze_amount"`
}

func parseBalanceResponse(body []byte) (Balance, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Balance{}, fmt.Errorf("walletclient: parse response: %w", err)
	}

	responseKey := strings.ReplaceAll(balanceQueryMethod, ".", "_") + "_response"
	raw, ok := envelope[responseKey]
	if !ok {
		return Balance{}, fmt.Errorf("walletclient: response missing %s field", responseKey)
	}

	var result balanceQueryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return Balance{}, fmt.Errorf("walletclient: parse %s: %w", responseKey, err)
	}

	if result.Code != "10000" {
		msg := result.SubMsg
		if msg == "" {
			msg = result.Msg
		}
		if msg == "" {
			msg = "unknown error"
		}
		return Balance{}, fmt.Errorf("walletclient: balance.query returned [%s] %s", result.Code, msg)
	}

	total, err := parseAmount(result.Total)
	if err != nil {
		return Balance{}, fmt.Errorf("walletclient: parse total_amount: %w", err)
	}
	available, err := parseAmount(result.Available)
	if err != nil {
		return Balance{}, fmt.Errorf("walletclient: parse available_amount: %w", err)
	}
	freeze, err := parseAmount(result.Freeze)
	if err != nil {
		return Balance{}, fmt.Errorf("walletclient: parse freeze_amount: %w", err)
	}

	return Balance{Total: total, Available: available, Freeze: freeze}, nil
}

func parseAmount(s string) (money.Money, error) {
	if s == "" {
		s = "0"
	}
	return money.FromMajor(money.CNY, s)
}

// VerifyConnectivity exercises balance.query once purely to validate that a
// newly-onboarded credential's keys and app id are wired correctly.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	_, err := c.QueryBalance(ctx)
	return err
}
