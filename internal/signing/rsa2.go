package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"sort"
	"strings"
)

// RSA2Signer signs and verifies wallet-gateway request/response parameters
// using RSA2 (SHA256withRSA), the scheme the upstream wallet's open platform
// requires for application-to-gateway calls.
type RSA2Signer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewRSA2Signer loads a PEM-or-bare-base64 private key (the application's
// own key, used to sign outbound requests) and public key (the wallet
// gateway's key, used to verify inbound responses).
func NewRSA2Signer(privateKeyPEM, publicKeyPEM string) (*RSA2Signer, error) {
	priv, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("signing: load private key: %w", err)
	}
	pub, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("signing: load public key: %w", err)
	}
	return &RSA2Signer{privateKey: priv, publicKey: pub}, nil
}

func parsePrivateKey(keyStr string) (*rsa.PrivateKey, error) {
	der, err := decodePEMOrBareBase64(keyStr, "PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(der)
}

func parsePublicKey(keyStr string) (*rsa.PublicKey, error) {
	der, err := decodePEMOrBareBase64(keyStr, "PUBLIC KEY")
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA public key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PublicKey(der)
}

// decodePEMOrBareBase64 accepts either a full PEM block or a bare base64
// body (the common form credentials arrive in from merchant onboarding
// forms) and wraps the latter in a synthetic PEM envelope before decoding.
func decodePEMOrBareBase64(keyStr, blockType string) ([]byte, error) {
	trimmed := strings.TrimSpace(keyStr)
	if !strings.HasPrefix(trimmed, "-----") {
		trimmed = "-----BEGIN " + blockType + "-----\n" + trimmed + "\n-----END " + blockType + "-----"
	}
	block, _ := pem.Decode([]byte(trimmed))
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block")
	}
	return block.Bytes, nil
}

// Sign computes the RSA2 signature of params: filters the "sign" key and
// empty values, sorts keys ASCII-ascending, joins as "k1=v1&...&kN=vN"
// (values are never URL-encoded), and signs the SHA-256 digest with the
// application's private key via PKCS#1 v1.5, returning base64.
func (s *RSA2Signer) Sign(params map[string]string) (string, error) {
	digest := sha256.Sum256([]byte(canonicalString(params)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing: rsa sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyRaw verifies sign (base64) against the SHA-256 digest of content
// using the wallet gateway's public key. The wallet signs its JSON response
// body verbatim, not a reconstructed key=value string, so callers pass the
// raw response bytes rather than a params map.
func (s *RSA2Signer) VerifyRaw(content []byte, sign string) bool {
	sigBytes, err := base64.StdEncoding.DecodeString(sign)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(content)
	return rsa.VerifyPKCS1v15(s.publicKey, crypto.SHA256, digest[:], sigBytes) == nil
}

func canonicalString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}
