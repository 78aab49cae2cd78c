package gateway

import (
	"context"

	"github.com/qiupay/gateway/internal/credstore"
	"github.com/qiupay/gateway/internal/money"
	"github.com/qiupay/gateway/internal/orders"
	"github.com/qiupay/gateway/internal/reconciler"
	"github.com/qiupay/gateway/internal/storage"
	"github.com/qiupay/gateway/internal/walletclient"
)

// balanceAdapter narrows walletclient.Client down to the single-method
// shape both orders.BalanceQuerier and reconciler.BalanceQuerier declare.
// The two interfaces are structurally identical but nominally distinct
// Go types, so one adapter type satisfies both without either package
// importing the other.
type balanceAdapter struct {
	client *walletclient.Client
}

func (a *balanceAdapter) QueryBalance(ctx context.Context) (money.Money, error) {
	balance, err := a.client.QueryBalance(ctx)
	if err != nil {
		return money.Money{}, err
	}
	return balance.Available, nil
}

// ordersWalletFactory adapts walletclient.Factory to orders.WalletFactory.
type ordersWalletFactory struct {
	factory *walletclient.Factory
}

func (f *ordersWalletFactory) ForCredential(cred credstore.ResolvedCredential) (orders.BalanceQuerier, error) {
	client, err := f.factory.ForCredential(cred)
	if err != nil {
		return nil, err
	}
	return &balanceAdapter{client: client}, nil
}

// reconcilerWalletFactory adapts walletclient.Factory to reconciler.WalletFactory.
type reconcilerWalletFactory struct {
	factory *walletclient.Factory
}

func (f *reconcilerWalletFactory) ForCredential(cred credstore.ResolvedCredential) (reconciler.BalanceQuerier, error) {
	client, err := f.factory.ForCredential(cred)
	if err != nil {
		return nil, err
	}
	return &balanceAdapter{client: client}, nil
}

// credentialLister adapts storage.Store to credstore.Lister, converting
// the persisted time.Time CreatedAt to the unix-seconds form the resolver's
// newest-active-wins tie-break compares on.
type credentialLister struct {
	store storage.Store
}

func (l *credentialLister) ListCredentials(ctx context.Context, merchantID string) ([]credstore.EncryptedCredential, error) {
	creds, err := l.store.ListCredentialsByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	out := make([]credstore.EncryptedCredential, 0, len(creds))
	for _, c := range creds {
		out = append(out, credstore.EncryptedCredential{
			ID:                  c.ID,
			MerchantID:          c.MerchantID,
			QRCodeURL:           c.QRCodeURL,
			AppID:               c.AppID,
			PublicKeyEncrypted:  c.PublicKeyEncrypted,
			PrivateKeyEncrypted: c.PrivateKeyEncrypted,
			Active:              c.Active,
			CreatedAt:           c.CreatedAt.Unix(),
		})
	}
	return out, nil
}

