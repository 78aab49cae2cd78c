package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/credstore"
	"github.com/qiupay/gateway/internal/metrics"
	"github.com/qiupay/gateway/internal/money"
	"github.com/qiupay/gateway/internal/orders"
	"github.com/qiupay/gateway/internal/signing"
	"github.com/qiupay/gateway/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeBalanceQuerier struct {
	balance money.Money
}

func (f fakeBalanceQuerier) QueryBalance(ctx context.Context) (money.Money, error) {
	return f.balance, nil
}

type fakeWalletFactory struct {
	balance money.Money
}

func (f fakeWalletFactory) ForCredential(cred credstore.ResolvedCredential) (orders.BalanceQuerier, error) {
	return fakeBalanceQuerier{balance: f.balance}, nil
}

type memoryLister struct {
	store storage.Store
}

func (m memoryLister) ListCredentials(ctx context.Context, merchantID string) ([]credstore.EncryptedCredential, error) {
	creds, err := m.store.ListCredentialsByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	out := make([]credstore.EncryptedCredential, len(creds))
	for i, c := range creds {
		out[i] = credstore.EncryptedCredential{
			ID: c.ID, MerchantID: c.MerchantID, QRCodeURL: c.QRCodeURL, AppID: c.AppID,
			PublicKeyEncrypted: c.PublicKeyEncrypted, PrivateKeyEncrypted: c.PrivateKeyEncrypted,
			Active: c.Active, CreatedAt: c.CreatedAt.Unix(),
		}
	}
	return out, nil
}

type noopPollerStarter struct{}

func (noopPollerStarter) Start(ctx context.Context, tradeNo string) {}

// setupHandlers wires a real orders.Engine (memory store, in-process
// credential resolver, a fake wallet balance) behind handlers, exercising
// handleCreate against its actual dependencies rather than a mock.
func setupHandlers(t *testing.T) (*handlers, storage.Store, storage.Merchant) {
	t.Helper()
	store := storage.NewMemoryStore()

	merchant := storage.Merchant{ID: "m1", Username: "merchant1", Key: "supersecretmerchantkey12345", Active: true, CreatedAt: time.Now()}
	if err := store.CreateMerchant(context.Background(), merchant); err != nil {
		t.Fatalf("CreateMerchant() error = %v", err)
	}

	enc, err := credstore.NewEncryptor("test-master-secret")
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	pub, _ := enc.Encrypt("pub-key")
	priv, _ := enc.Encrypt("priv-key")
	cred := storage.Credential{
		ID: "c1", MerchantID: "m1", QRCodeURL: "https://example.com/qr.png", AppID: "app1",
		PublicKeyEncrypted: pub, PrivateKeyEncrypted: priv, Active: true, CreatedAt: time.Now(),
	}
	if err := store.CreateCredential(context.Background(), cred); err != nil {
		t.Fatalf("CreateCredential() error = %v", err)
	}

	resolver := credstore.NewResolver(memoryLister{store: store}, enc)
	balance, _ := money.FromMajor(money.CNY, "1000.00")
	wallets := fakeWalletFactory{balance: balance}

	ordersCfg := config.OrdersConfig{
		ExpireAfter:    config.Duration{Duration: 10 * time.Minute},
		MaxAdjustSteps: 100,
		TradeNoRetries: 10,
	}
	engine := orders.NewEngine(store, resolver, wallets, ordersCfg)

	return &handlers{
		cfg:           &config.Config{},
		store:         store,
		orders:        engine,
		pollerStarter: noopPollerStarter{},
		metrics:       metrics.New(prometheus.NewRegistry()),
		logger:        zerolog.Nop(),
		appCtx:        context.Background(),
	}, store, merchant
}

func signedCreateForm(merchant storage.Merchant, money string) url.Values {
	params := map[string]string{
		"pid":          merchant.Username,
		"type":         "1",
		"out_trade_no": "M-1001",
		"name":         "widget",
		"money":        money,
	}
	sign := signing.Sign(params, merchant.Key)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("sign", sign)
	return form
}

func TestHandleCreateSuccess(t *testing.T) {
	h, _, merchant := setupHandlers(t)
	form := signedCreateForm(merchant, "20.00")

	req := httptest.NewRequest(http.MethodPost, "/pay/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.handleCreate(rec, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["code"] != float64(1) {
		t.Fatalf("expected code=1, got %v (body=%s)", resp["code"], rec.Body.String())
	}
	if resp["trade_no"] == "" || resp["trade_no"] == nil {
		t.Fatalf("expected a non-empty trade_no, got %v", resp["trade_no"])
	}
	if resp["qrcode"] != "https://example.com/qr.png" {
		t.Fatalf("expected qrcode to echo the credential's QR URL, got %v", resp["qrcode"])
	}
}

func TestHandleCreateRejectsBadSignature(t *testing.T) {
	h, _, merchant := setupHandlers(t)
	form := signedCreateForm(merchant, "20.00")
	form.Set("sign", "0000000000000000000000000000000")

	req := httptest.NewRequest(http.MethodPost, "/pay/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.handleCreate(rec, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["code"] != float64(-1) {
		t.Fatalf("expected code=-1 for bad signature, got %v", resp["code"])
	}
}

func TestHandleCreateMissingField(t *testing.T) {
	h, _, merchant := setupHandlers(t)
	form := signedCreateForm(merchant, "20.00")
	form.Del("name")

	req := httptest.NewRequest(http.MethodPost, "/pay/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.handleCreate(rec, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["code"] != float64(-1) {
		t.Fatalf("expected code=-1 for missing field, got %v", resp["code"])
	}
}

func TestHandleCreateUnknownMerchant(t *testing.T) {
	h, _, merchant := setupHandlers(t)
	merchant.Username = "ghost"
	merchant.Key = "whatever-key-长度足够"
	form := signedCreateForm(merchant, "20.00")

	req := httptest.NewRequest(http.MethodPost, "/pay/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.handleCreate(rec, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["code"] != float64(-1) {
		t.Fatalf("expected code=-1 for unknown merchant, got %v", resp["code"])
	}
}

func TestHandleStatusNotFound(t *testing.T) {
	h, _, _ := setupHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/pay/status/nonexistent", nil)
	rec := httptest.NewRecorder()

	h.handleStatus(rec, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["code"] != float64(-1) {
		t.Fatalf("expected code=-1 for unknown trade_no, got %v", resp["code"])
	}
}
