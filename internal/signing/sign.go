// Package signing implements the MD5 canonical-form signing protocol shared
// across inbound merchant traffic and outbound callback notifications.
package signing

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign computes the canonical MD5 signature of params under the given
// secret. Keys "sign" and "sign_type" and empty-valued keys are dropped;
// remaining keys are sorted byte-wise ascending and joined as
// "k1=v1&k2=v2&...&kN=vN"; the secret is appended with no separator before
// hashing. Values are never URL-encoded.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || k == "sign_type" {
			continue
		}
		if v == "" {
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
	b.WriteString(secret)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the signature of params under secret and compares it
// byte-for-byte against sign.
func Verify(params map[string]string, secret, sign string) bool {
	return Sign(params, secret) == sign
}
