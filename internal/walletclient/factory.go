package walletclient

import (
	"github.com/qiupay/gateway/internal/circuitbreaker"
	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/credstore"
)

// Factory builds a Client for a resolved credential, applying the
// cross-credential defaults (gateway URL, sign type, charset, version,
// timeout) while the credential supplies its own app id and RSA key pair.
type Factory struct {
	cfg     config.WalletConfig
	breaker *circuitbreaker.Manager
}

// NewFactory constructs a Factory shared across all credentials.
func NewFactory(cfg config.WalletConfig, breaker *circuitbreaker.Manager) *Factory {
	return &Factory{cfg: cfg, breaker: breaker}
}

// ForCredential builds a Client scoped to one resolved credential's keys.
func (f *Factory) ForCredential(cred credstore.ResolvedCredential) (*Client, error) {
	return New(Config{
		GatewayURL:    f.cfg.GatewayURL,
		AppID:         cred.AppID,
		SignType:      f.cfg.SignType,
		Charset:       f.cfg.Charset,
		Version:       f.cfg.Version,
		Timeout:       f.cfg.Timeout.Duration,
		PrivateKeyPEM: cred.PrivateKey,
		PublicKeyPEM:  cred.PublicKey,
	}, f.breaker)
}
