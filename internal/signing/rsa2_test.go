package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func generateTestKeyPair(t *testing.T) (privatePEM, publicPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	privBlock := &pem.Block{Type: "PRIVATE KEY", Bytes: privDER}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubBlock := &pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}

	return string(pem.EncodeToMemory(privBlock)), string(pem.EncodeToMemory(pubBlock))
}

func TestRSA2SignVerifyRoundTrip(t *testing.T) {
	privPEM, pubPEM := generateTestKeyPair(t)

	signer, err := NewRSA2Signer(privPEM, pubPEM)
	if err != nil {
		t.Fatalf("NewRSA2Signer() error = %v", err)
	}

	params := map[string]string{
		"app_id":    "2021000000000000",
		"method":    "alipay.data.bill.balance.query",
		"charset":   "utf-8",
		"sign_type": "RSA2",
		"timestamp": "2026-07-30 12:00:00",
		"version":   "1.0",
		"biz_content": "{}",
	}

	sig, err := signer.Sign(params)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	// The signature verifies against the same canonical string that was
	// signed, reconstructed and hashed directly as raw bytes.
	if !signer.VerifyRaw([]byte(canonicalString(params)), sig) {
		t.Fatal("VerifyRaw() rejected a signature produced by Sign()")
	}
}

func TestRSA2SignIgnoresSignAndEmptyParams(t *testing.T) {
	privPEM, pubPEM := generateTestKeyPair(t)
	signer, err := NewRSA2Signer(privPEM, pubPEM)
	if err != nil {
		t.Fatalf("NewRSA2Signer() error = %v", err)
	}

	withExtra := map[string]string{"a": "1", "b": "2", "sign": "stale", "empty": ""}
	without := map[string]string{"a": "1", "b": "2"}

	sig1, err := signer.Sign(withExtra)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	sig2, err := signer.Sign(without)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if sig1 != sig2 {
		t.Fatal("sign/empty keys must not affect the canonical string")
	}
}

func TestRSA2VerifyRejectsTamperedContent(t *testing.T) {
	privPEM, pubPEM := generateTestKeyPair(t)
	signer, err := NewRSA2Signer(privPEM, pubPEM)
	if err != nil {
		t.Fatalf("NewRSA2Signer() error = %v", err)
	}

	content := []byte(`{"total_amount":"100.00"}`)
	sig, err := signer.Sign(map[string]string{"total_amount": "100.00"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if signer.VerifyRaw([]byte(`{"total_amount":"999.00"}`), sig) {
		t.Fatal("VerifyRaw() accepted a signature for tampered content")
	}
	_ = content
}

func TestRSA2VerifyRejectsWrongKeyPair(t *testing.T) {
	privPEM1, _ := generateTestKeyPair(t)
	_, pubPEM2 := generateTestKeyPair(t)

	signer1, err := NewRSA2Signer(privPEM1, pubPEM2)
	if err != nil {
		t.Fatalf("NewRSA2Signer() error = %v", err)
	}

	params := map[string]string{"a": "1"}
	sig, err := signer1.Sign(params)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if signer1.VerifyRaw([]byte(canonicalString(params)), sig) {
		t.Fatal("VerifyRaw() accepted a signature under a mismatched public key")
	}
}

func TestNewRSA2SignerRejectsMalformedKeys(t *testing.T) {
	if _, err := NewRSA2Signer("not a key", "also not a key"); err == nil {
		t.Fatal("expected error for malformed keys")
	}
}
