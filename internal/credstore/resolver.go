package credstore

import (
	"context"
	"fmt"
	"sort"
)

// EncryptedCredential is a credential record as persisted: the RSA key
// material is still sealed under Encryptor and must be decrypted before
// use by the wallet client.
type EncryptedCredential struct {
	ID                   string
	MerchantID           string
	QRCodeURL            string
	AppID                string
	PublicKeyEncrypted   string
	PrivateKeyEncrypted  string
	Active               bool
	CreatedAt            int64 // unix seconds, used to break ties newest-active-wins
}

// ResolvedCredential is a credential with its RSA key material decrypted
// and ready to hand to the wallet client.
type ResolvedCredential struct {
	ID         string
	MerchantID string
	QRCodeURL  string
	AppID      string
	PublicKey  string
	PrivateKey string
}

// Lister fetches the raw (encrypted) credentials belonging to a merchant.
// Implemented by the storage layer.
type Lister interface {
	ListCredentials(ctx context.Context, merchantID string) ([]EncryptedCredential, error)
}

// Resolver selects and decrypts the active wallet credential for a
// merchant: newest-active wins when more than one is active.
type Resolver struct {
	lister    Lister
	encryptor *Encryptor
}

// NewResolver builds a Resolver.
func NewResolver(lister Lister, encryptor *Encryptor) *Resolver {
	return &Resolver{lister: lister, encryptor: encryptor}
}

// ErrNoActiveCredential is returned when a merchant has no active
// credential to resolve against.
var ErrNoActiveCredential = fmt.Errorf("credstore: merchant has no active credential")

// Resolve returns the merchant's active credential, preferring the most
// recently created one if more than one is marked active.
func (r *Resolver) Resolve(ctx context.Context, merchantID string) (ResolvedCredential, error) {
	all, err := r.lister.ListCredentials(ctx, merchantID)
	if err != nil {
		return ResolvedCredential{}, fmt.Errorf("credstore: list credentials: %w", err)
	}

	active := make([]EncryptedCredential, 0, len(all))
	for _, c := range all {
		if c.Active {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return ResolvedCredential{}, ErrNoActiveCredential
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt > active[j].CreatedAt
	})
	chosen := active[0]

	publicKey, err := r.encryptor.Decrypt(chosen.PublicKeyEncrypted)
	if err != nil {
		return ResolvedCredential{}, fmt.Errorf("credstore: decrypt public key: %w", err)
	}
	privateKey, err := r.encryptor.Decrypt(chosen.PrivateKeyEncrypted)
	if err != nil {
		return ResolvedCredential{}, fmt.Errorf("credstore: decrypt private key: %w", err)
	}

	return ResolvedCredential{
		ID:         chosen.ID,
		MerchantID: chosen.MerchantID,
		QRCodeURL:  chosen.QRCodeURL,
		AppID:      chosen.AppID,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}, nil
}

// ResolveByID decrypts a single known credential, used by the reconciler
// and poller once an order has already bound to a credential id and no
// re-resolution (and therefore no re-running of the newest-active-wins
// policy) should occur.
func (r *Resolver) ResolveByID(ctx context.Context, merchantID, credentialID string) (ResolvedCredential, error) {
	all, err := r.lister.ListCredentials(ctx, merchantID)
	if err != nil {
		return ResolvedCredential{}, fmt.Errorf("credstore: list credentials: %w", err)
	}

	for _, c := range all {
		if c.ID != credentialID {
			continue
		}
		publicKey, err := r.encryptor.Decrypt(c.PublicKeyEncrypted)
		if err != nil {
			return ResolvedCredential{}, fmt.Errorf("credstore: decrypt public key: %w", err)
		}
		privateKey, err := r.encryptor.Decrypt(c.PrivateKeyEncrypted)
		if err != nil {
			return ResolvedCredential{}, fmt.Errorf("credstore: decrypt private key: %w", err)
		}
		return ResolvedCredential{
			ID:         c.ID,
			MerchantID: c.MerchantID,
			QRCodeURL:  c.QRCodeURL,
			AppID:      c.AppID,
			PublicKey:  publicKey,
			PrivateKey: privateKey,
		}, nil
	}

	return ResolvedCredential{}, fmt.Errorf("credstore: credential %s not found for merchant %s", credentialID, merchantID)
}
