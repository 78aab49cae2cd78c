package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/credstore"
	"github.com/qiupay/gateway/internal/money"
	"github.com/qiupay/gateway/internal/storage"
)

type listerAdapter struct {
	store storage.Store
}

func (l listerAdapter) ListCredentials(ctx context.Context, merchantID string) ([]credstore.EncryptedCredential, error) {
	creds, err := l.store.ListCredentialsByMerchant(ctx, merchantID)
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

type fakeQuerier struct {
	balance money.Money
	err     error
}

func (f fakeQuerier) QueryBalance(ctx context.Context) (money.Money, error) {
	return f.balance, f.err
}

type fakeWallets struct {
	balance money.Money
	err     error
}

func (f *fakeWallets) ForCredential(cred credstore.ResolvedCredential) (BalanceQuerier, error) {
	return fakeQuerier{balance: f.balance, err: f.err}, nil
}

type recordingDispatcher struct {
	enqueued []string
}

func (d *recordingDispatcher) Enqueue(tradeNo string) {
	d.enqueued = append(d.enqueued, tradeNo)
}

type testFixture struct {
	reconciler *Reconciler
	store      storage.Store
	wallets    *fakeWallets
	dispatcher *recordingDispatcher
	credID     string
	merchantID string
}

func setupReconciler(t *testing.T) *testFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()

	merchant := storage.Merchant{ID: "m1", Username: "merchant1", Key: "deadbeef", Active: true, CreatedAt: time.Now()}
	if err := store.CreateMerchant(ctx, merchant); err != nil {
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
	if err := store.CreateCredential(ctx, cred); err != nil {
		t.Fatalf("CreateCredential() error = %v", err)
	}

	resolver := credstore.NewResolver(listerAdapter{store: store}, enc)
	wallets := &fakeWallets{}
	dispatcher := &recordingDispatcher{}

	rec := New(store, resolver, wallets, dispatcher, config.ReconcilerConfig{ConsecutiveFailureWarnThreshold: 3})

	return &testFixture{reconciler: rec, store: store, wallets: wallets, dispatcher: dispatcher, credID: cred.ID, merchantID: merchant.ID}
}

func (f *testFixture) createOrder(t *testing.T, tradeNo string, moneyCents, baseBalanceCents int64) storage.Order {
	t.Helper()
	order := storage.Order{
		ID:           tradeNo,
		TradeNo:      tradeNo,
		OutTradeNo:   tradeNo,
		MerchantID:   f.merchantID,
		CredentialID: f.credID,
		Money:        moneyCents,
		Status:       storage.OrderPending,
		BaseBalance:  baseBalanceCents,
		CreatedAt:    time.Now(),
	}
	if err := f.store.CreateOrder(context.Background(), order); err != nil {
		t.Fatalf("CreateOrder(%s) error = %v", tradeNo, err)
	}
	return order
}

// S1: a single outstanding order, wallet balance rises by exactly its
// amount — should match on the first and only candidate.
func TestCheckPaymentSingleOrderMatch(t *testing.T) {
	f := setupReconciler(t)
	f.createOrder(t, "t1", 2000, 100000)
	f.wallets.balance, _ = money.FromMajor(money.CNY, "1020.00")

	matched, err := f.reconciler.CheckPayment(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CheckPayment() error = %v", err)
	}
	if !matched {
		t.Error("matched = false, want true")
	}

	order, err := f.store.GetOrderByTradeNo(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetOrderByTradeNo() error = %v", err)
	}
	if order.Status != storage.OrderPaid {
		t.Errorf("Status = %v, want OrderPaid", order.Status)
	}
	if order.ConfirmBalance != f.wallets.balance.Atomic {
		t.Errorf("ConfirmBalance = %d, want %d", order.ConfirmBalance, f.wallets.balance.Atomic)
	}
	if len(f.dispatcher.enqueued) != 1 || f.dispatcher.enqueued[0] != "t1" {
		t.Errorf("enqueued = %v, want [t1]", f.dispatcher.enqueued)
	}

	merchant, err := f.store.GetMerchant(context.Background(), f.merchantID)
	if err != nil {
		t.Fatalf("GetMerchant() error = %v", err)
	}
	if merchant.Money != 2000 {
		t.Errorf("merchant.Money = %d, want 2000", merchant.Money)
	}
}

// S2: several pending orders on the same credential; only one of them
// (not necessarily the first) sums to the observed delta.
func TestCheckPaymentMiddleOrderMatch(t *testing.T) {
	f := setupReconciler(t)
	f.createOrder(t, "t1", 1500, 100000)
	f.createOrder(t, "t2", 2000, 100000)
	f.createOrder(t, "t3", 3000, 100000)
	f.wallets.balance, _ = money.FromMajor(money.CNY, "1020.00")

	matched, err := f.reconciler.CheckPayment(context.Background(), "t2")
	if err != nil {
		t.Fatalf("CheckPayment() error = %v", err)
	}
	if !matched {
		t.Error("matched = false, want true")
	}

	for _, tn := range []string{"t1", "t3"} {
		order, err := f.store.GetOrderByTradeNo(context.Background(), tn)
		if err != nil {
			t.Fatalf("GetOrderByTradeNo(%s) error = %v", tn, err)
		}
		if order.Status != storage.OrderPending {
			t.Errorf("%s: Status = %v, want OrderPending (unmatched siblings must stay untouched)", tn, order.Status)
		}
	}
}

// S3: no single order matches the delta, but a 2-element subset does —
// the DFS must search beyond singletons.
func TestCheckPaymentSubsetMatch(t *testing.T) {
	f := setupReconciler(t)
	f.createOrder(t, "t1", 1000, 100000)
	f.createOrder(t, "t2", 1500, 100000)
	f.createOrder(t, "t3", 700, 100000)
	// 1000 + 700 = 1700, matches delta; no single order equals 1700.
	f.wallets.balance, _ = money.FromMajor(money.CNY, "1017.00")

	matched, err := f.reconciler.CheckPayment(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CheckPayment() error = %v", err)
	}
	if !matched {
		t.Error("matched = false, want true")
	}

	t3, err := f.store.GetOrderByTradeNo(context.Background(), "t3")
	if err != nil {
		t.Fatalf("GetOrderByTradeNo(t3) error = %v", err)
	}
	if t3.Status != storage.OrderPaid {
		t.Errorf("t3.Status = %v, want OrderPaid", t3.Status)
	}

	t2, err := f.store.GetOrderByTradeNo(context.Background(), "t2")
	if err != nil {
		t.Fatalf("GetOrderByTradeNo(t2) error = %v", err)
	}
	if t2.Status != storage.OrderPending {
		t.Errorf("t2.Status = %v, want OrderPending", t2.Status)
	}
}

// S4: balance has not moved (or has dropped) since base_balance — must
// never be treated as a match.
func TestCheckPaymentNoPositiveChange(t *testing.T) {
	f := setupReconciler(t)
	f.createOrder(t, "t1", 2000, 100000)
	f.wallets.balance, _ = money.FromMajor(money.CNY, "1000.00")

	matched, err := f.reconciler.CheckPayment(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CheckPayment() error = %v", err)
	}
	if matched {
		t.Error("matched = true, want false")
	}

	order, err := f.store.GetOrderByTradeNo(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetOrderByTradeNo() error = %v", err)
	}
	if order.Status != storage.OrderPending {
		t.Errorf("Status = %v, want OrderPending", order.Status)
	}
}

func TestCheckPaymentOrderNotFound(t *testing.T) {
	f := setupReconciler(t)
	matched, err := f.reconciler.CheckPayment(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("CheckPayment() error = %v", err)
	}
	if matched {
		t.Error("matched = true, want false")
	}
}

func TestCheckPaymentAlreadyPaidShortCircuits(t *testing.T) {
	f := setupReconciler(t)
	f.createOrder(t, "t1", 2000, 100000)
	if err := f.store.MarkOrdersPaid(context.Background(), []string{"t1"}, 102000, time.Now()); err != nil {
		t.Fatalf("MarkOrdersPaid() error = %v", err)
	}

	matched, err := f.reconciler.CheckPayment(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CheckPayment() error = %v", err)
	}
	if !matched {
		t.Error("matched = false, want true")
	}
	if len(f.dispatcher.enqueued) != 0 {
		t.Errorf("enqueued = %v, want none (already-paid order should not re-dispatch)", f.dispatcher.enqueued)
	}
}

func TestCheckPaymentCrossCredentialOrdersDoNotMix(t *testing.T) {
	f := setupReconciler(t)
	ctx := context.Background()

	enc, err := credstore.NewEncryptor("test-master-secret")
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	pub, _ := enc.Encrypt("pub-key-2")
	priv, _ := enc.Encrypt("priv-key-2")
	otherCred := storage.Credential{
		ID: "c2", MerchantID: f.merchantID, QRCodeURL: "https://example.com/qr2.png", AppID: "app2",
		PublicKeyEncrypted: pub, PrivateKeyEncrypted: priv, Active: true, CreatedAt: time.Now(),
	}
	if err := f.store.CreateCredential(ctx, otherCred); err != nil {
		t.Fatalf("CreateCredential() error = %v", err)
	}

	f.createOrder(t, "t1", 1000, 100000)
	otherOrder := storage.Order{
		ID: "t2", TradeNo: "t2", OutTradeNo: "t2", MerchantID: f.merchantID, CredentialID: otherCred.ID,
		Money: 700, Status: storage.OrderPending, BaseBalance: 100000, CreatedAt: time.Now(),
	}
	if err := f.store.CreateOrder(ctx, otherOrder); err != nil {
		t.Fatalf("CreateOrder(t2) error = %v", err)
	}

	// Delta matches the cross-credential pair (1000+700=1700) but not t1 alone.
	f.wallets.balance, _ = money.FromMajor(money.CNY, "1017.00")

	matched, err := f.reconciler.CheckPayment(ctx, "t1")
	if err != nil {
		t.Fatalf("CheckPayment() error = %v", err)
	}
	if matched {
		t.Error("matched = true, want false (siblings on a different credential must never participate)")
	}

	t2, err := f.store.GetOrderByTradeNo(ctx, "t2")
	if err != nil {
		t.Fatalf("GetOrderByTradeNo(t2) error = %v", err)
	}
	if t2.Status != storage.OrderPending {
		t.Errorf("t2.Status = %v, want OrderPending (different credential group)", t2.Status)
	}
}

func TestCheckPaymentNoPendingOrders(t *testing.T) {
	f := setupReconciler(t)
	f.wallets.balance, _ = money.FromMajor(money.CNY, "1020.00")
	matched, err := f.reconciler.CheckPayment(context.Background(), "ghost-trade-no")
	if err != nil {
		t.Fatalf("CheckPayment() error = %v", err)
	}
	if matched {
		t.Error("matched = true, want false")
	}
}

func TestCheckPaymentWalletFailureRecordsConsecutiveWarn(t *testing.T) {
	f := setupReconciler(t)
	f.createOrder(t, "t1", 2000, 100000)
	f.wallets.err = errWalletUnavailable{}

	for i := 0; i < 3; i++ {
		matched, err := f.reconciler.CheckPayment(context.Background(), "t1")
		if err != nil {
			t.Fatalf("CheckPayment() iteration %d error = %v", i, err)
		}
		if matched {
			t.Errorf("iteration %d: matched = true, want false", i)
		}
	}
	if f.reconciler.failures.counts[f.credID] != 3 {
		t.Errorf("consecutive failures = %d, want 3", f.reconciler.failures.counts[f.credID])
	}

	f.wallets.err = nil
	f.wallets.balance, _ = money.FromMajor(money.CNY, "1020.00")
	if _, err := f.reconciler.CheckPayment(context.Background(), "t1"); err != nil {
		t.Fatalf("CheckPayment() error = %v", err)
	}
	if _, ok := f.reconciler.failures.counts[f.credID]; ok {
		t.Error("failure counter should reset on success")
	}
}

func TestRebaseAfterExpirySkipsFailedGroups(t *testing.T) {
	f := setupReconciler(t)
	f.createOrder(t, "t1", 2000, 100000)
	f.wallets.err = errWalletUnavailable{}

	f.reconciler.RebaseAfterExpiry(context.Background(), []string{f.credID})

	order, err := f.store.GetOrderByTradeNo(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetOrderByTradeNo() error = %v", err)
	}
	if order.BaseBalance != 100000 {
		t.Errorf("BaseBalance = %d, want unchanged 100000 after failed rebase", order.BaseBalance)
	}

	f.wallets.err = nil
	f.wallets.balance, _ = money.FromMajor(money.CNY, "1500.00")
	f.reconciler.RebaseAfterExpiry(context.Background(), []string{f.credID})

	order, err = f.store.GetOrderByTradeNo(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetOrderByTradeNo() error = %v", err)
	}
	if order.BaseBalance != f.wallets.balance.Atomic {
		t.Errorf("BaseBalance = %d, want %d after successful rebase", order.BaseBalance, f.wallets.balance.Atomic)
	}
}

type errWalletUnavailable struct{}

func (errWalletUnavailable) Error() string { return "wallet unavailable" }
