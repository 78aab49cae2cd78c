package orders

import (
	"context"
	"testing"
	"time"

	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/credstore"
	"github.com/qiupay/gateway/internal/money"
	"github.com/qiupay/gateway/internal/storage"
)

type fakeBalanceQuerier struct {
	balance money.Money
	err     error
}

func (f fakeBalanceQuerier) QueryBalance(ctx context.Context) (money.Money, error) {
	return f.balance, f.err
}

type fakeWalletFactory struct {
	balance money.Money
	err     error
}

func (f fakeWalletFactory) ForCredential(cred credstore.ResolvedCredential) (BalanceQuerier, error) {
	return fakeBalanceQuerier{balance: f.balance, err: f.err}, nil
}

func setupEngine(t *testing.T, baseBalanceMajor string) (*Engine, storage.Store, storage.Merchant, string) {
	t.Helper()
	store := storage.NewMemoryStore()

	merchant := storage.Merchant{ID: "m1", Username: "merchant1", Key: "deadbeef", Active: true, CreatedAt: time.Now()}
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

	balance, _ := money.FromMajor(money.CNY, baseBalanceMajor)
	wallets := fakeWalletFactory{balance: balance}

	cfg := config.OrdersConfig{
		ExpireAfter:    config.Duration{Duration: 10 * time.Minute},
		MaxAdjustSteps: 100,
		TradeNoRetries: 10,
	}
	engine := NewEngine(store, resolver, wallets, cfg)
	return engine, store, merchant, cred.ID
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

func TestCreateOrderBasic(t *testing.T) {
	engine, _, _, credID := setupEngine(t, "1000.00")

	result, err := engine.CreateOrder(context.Background(), CreateParams{
		MerchantID: "m1",
		OutTradeNo: "out-1",
		Money:      "20.00",
		NotifyURL:  "https://merchant.example.com/notify",
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if result.Order.Money != 2000 {
		t.Errorf("Money = %d, want 2000", result.Order.Money)
	}
	if result.Order.CredentialID != credID {
		t.Errorf("CredentialID = %s, want %s", result.Order.CredentialID, credID)
	}
	if result.Order.BaseBalance != 100000 {
		t.Errorf("BaseBalance = %d, want 100000", result.Order.BaseBalance)
	}
	if result.QRCodeURL != "https://example.com/qr.png" {
		t.Errorf("QRCodeURL = %s", result.QRCodeURL)
	}
	if result.Order.Status != storage.OrderPending {
		t.Errorf("Status = %v, want OrderPending", result.Order.Status)
	}
}

func TestCreateOrderAmountLadder(t *testing.T) {
	engine, _, _, _ := setupEngine(t, "1000.00")
	ctx := context.Background()

	wantCents := []int64{2000, 2001, 2002, 2003, 2004}
	for i, want := range wantCents {
		result, err := engine.CreateOrder(ctx, CreateParams{
			MerchantID: "m1",
			OutTradeNo: "out-" + string(rune('a'+i)),
			Money:      "20.00",
		})
		if err != nil {
			t.Fatalf("CreateOrder() [%d] error = %v", i, err)
		}
		if result.Order.Money != want {
			t.Errorf("order %d: Money = %d, want %d", i, result.Order.Money, want)
		}
	}
}

func TestCreateOrderMerchantMissing(t *testing.T) {
	engine, _, _, _ := setupEngine(t, "1000.00")
	_, err := engine.CreateOrder(context.Background(), CreateParams{MerchantID: "ghost", Money: "1.00"})
	if err != ErrMerchantMissing {
		t.Errorf("error = %v, want ErrMerchantMissing", err)
	}
}

func TestCreateOrderMerchantInactive(t *testing.T) {
	engine, store, merchant, _ := setupEngine(t, "1000.00")
	if err := store.SetMerchantActive(context.Background(), merchant.ID, false); err != nil {
		t.Fatalf("SetMerchantActive() error = %v", err)
	}

	_, err := engine.CreateOrder(context.Background(), CreateParams{MerchantID: "m1", Money: "1.00"})
	if err != ErrMerchantInactive {
		t.Errorf("error = %v, want ErrMerchantInactive", err)
	}
}

func TestCreateOrderInvalidAmount(t *testing.T) {
	engine, _, _, _ := setupEngine(t, "1000.00")
	_, err := engine.CreateOrder(context.Background(), CreateParams{MerchantID: "m1", Money: "not-a-number"})
	if err != ErrInvalidAmount {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}

	_, err = engine.CreateOrder(context.Background(), CreateParams{MerchantID: "m1", Money: "0.00"})
	if err != ErrInvalidAmount {
		t.Errorf("zero amount: error = %v, want ErrInvalidAmount", err)
	}
}

func TestExpireSweepFlipsStaleOrders(t *testing.T) {
	engine, store, _, _ := setupEngine(t, "1000.00")
	ctx := context.Background()

	result, err := engine.CreateOrder(ctx, CreateParams{MerchantID: "m1", OutTradeNo: "out-1", Money: "5.00"})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}

	stale := result.Order
	// Shrink ExpireAfter to 1ns so the freshly created order is immediately
	// eligible, rather than backdating CreatedAt through a store backdoor.
	// (Zero would not do: ExpireSweep treats it as the 10-minute default.)
	engine.cfg.ExpireAfter.Duration = time.Nanosecond

	if err := engine.ExpireSweep(ctx, nil); err != nil {
		t.Fatalf("ExpireSweep() error = %v", err)
	}

	got, err := store.GetOrderByTradeNo(ctx, stale.TradeNo)
	if err != nil {
		t.Fatalf("GetOrderByTradeNo() error = %v", err)
	}
	if got.Status != storage.OrderExpired {
		t.Errorf("Status = %v, want OrderExpired", got.Status)
	}
	if got.ExpiredAt == nil {
		t.Error("ExpiredAt is nil, want set")
	}
}

type recordingRebaser struct {
	called []string
}

func (r *recordingRebaser) RebaseAfterExpiry(ctx context.Context, credentialIDs []string) {
	r.called = append(r.called, credentialIDs...)
}

func TestExpireSweepTriggersRebase(t *testing.T) {
	engine, _, _, credID := setupEngine(t, "1000.00")
	ctx := context.Background()

	if _, err := engine.CreateOrder(ctx, CreateParams{MerchantID: "m1", OutTradeNo: "out-1", Money: "5.00"}); err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	engine.cfg.ExpireAfter.Duration = time.Nanosecond

	rebaser := &recordingRebaser{}
	if err := engine.ExpireSweep(ctx, rebaser); err != nil {
		t.Fatalf("ExpireSweep() error = %v", err)
	}

	if len(rebaser.called) != 1 || rebaser.called[0] != credID {
		t.Errorf("RebaseAfterExpiry called with %v, want [%s]", rebaser.called, credID)
	}
}
