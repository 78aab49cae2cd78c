package signing

import "testing"

func TestSignDropsSignAndEmptyValues(t *testing.T) {
	params := map[string]string{
		"pid":       "1001",
		"trade_no":  "20260730120000123456",
		"money":     "10.00",
		"sign":      "stale",
		"sign_type": "MD5",
		"param":     "",
	}
	secret := "test-secret-key"

	got := Sign(params, secret)

	// Order independent: constructing the same map with keys shuffled must
	// produce an identical signature.
	shuffled := map[string]string{
		"money":     "10.00",
		"trade_no":  "20260730120000123456",
		"pid":       "1001",
		"sign_type": "MD5",
		"sign":      "different-garbage",
	}
	if got2 := Sign(shuffled, secret); got != got2 {
		t.Fatalf("signature not order-independent: %s vs %s", got, got2)
	}

	if len(got) != 32 {
		t.Fatalf("expected 32 hex chars, got %d: %s", len(got), got)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	cases := []map[string]string{
		{"a": "1", "b": "2"},
		{"pid": "7", "money": "1.50", "out_trade_no": "abc123"},
		{"only": "value"},
	}
	for _, params := range cases {
		sign := Sign(params, "shared-secret")
		if !Verify(params, "shared-secret", sign) {
			t.Fatalf("verify failed to round-trip for %v", params)
		}
		if Verify(params, "wrong-secret", sign) {
			t.Fatalf("verify accepted signature under the wrong secret for %v", params)
		}
	}
}

func TestSignIgnoresEmptyAndSignKeys(t *testing.T) {
	withExtra := map[string]string{"a": "1", "b": "2", "sign": "x", "sign_type": "MD5", "empty": ""}
	without := map[string]string{"a": "1", "b": "2"}
	if Sign(withExtra, "k") != Sign(without, "k") {
		t.Fatalf("sign/sign_type/empty keys must not affect the canonical string")
	}
}
