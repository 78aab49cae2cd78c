package walletclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/qiupay/gateway/internal/circuitbreaker"
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
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
		string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
}

func newTestClient(t *testing.T, gatewayURL string) *Client {
	t.Helper()
	privPEM, pubPEM := generateTestKeyPair(t)
	c, err := New(Config{
		GatewayURL:    gatewayURL,
		AppID:         "2021000000000000",
		SignType:      "RSA2",
		Charset:       "utf-8",
		Version:       "1.0",
		Timeout:       5 * time.Second,
		PrivateKeyPEM: privPEM,
		PublicKeyPEM:  pubPEM,
	}, circuitbreaker.NewManager(circuitbreaker.Config{Enabled: false}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestQueryBalanceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("method") != balanceQueryMethod {
			t.Errorf("unexpected method = %q", r.FormValue("method"))
		}
		if r.FormValue("sign") == "" {
			t.Error("request missing sign")
		}
		fmt.Fprint(w, `{"alipay_data_bill_balance_query_response":{"code":"10000","msg":"Success","total_amount":"100.50","available_amount":"90.50","freeze_amount":"10.00"},"sign":"irrelevant"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	balance, err := client.QueryBalance(context.Background())
	if err != nil {
		t.Fatalf("QueryBalance() error = %v", err)
	}
	if got := balance.Total.ToMajor(); got != "100.50" {
		t.Errorf("Total = %s, want 100.50", got)
	}
	if got := balance.Available.ToMajor(); got != "90.50" {
		t.Errorf("Available = %s, want 90.50", got)
	}
	if got := balance.Freeze.ToMajor(); got != "10.00" {
		t.Errorf("Freeze = %s, want 10.00", got)
	}
}

func TestQueryBalanceBusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"alipay_data_bill_balance_query_response":{"code":"40004","sub_msg":"Insufficient permission"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.QueryBalance(context.Background()); err == nil {
		t.Fatal("expected error for non-10000 business code")
	} else if !strings.Contains(err.Error(), "Insufficient permission") {
		t.Errorf("error = %v, want it to mention sub_msg", err)
	}
}

func TestQueryBalanceMissingResponseKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error_response":{"code":"20000","msg":"Service Currently Unavailable"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.QueryBalance(context.Background()); err == nil {
		t.Fatal("expected error for missing response envelope key")
	}
}

func TestVerifyConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"alipay_data_bill_balance_query_response":{"code":"10000","total_amount":"0.00","available_amount":"0.00","freeze_amount":"0.00"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if err := client.VerifyConnectivity(context.Background()); err != nil {
		t.Errorf("VerifyConnectivity() error = %v", err)
	}
}
