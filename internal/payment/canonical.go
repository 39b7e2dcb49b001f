package payment

import (
	"crypto/hmac"
	"encoding/hex"
	"hash"
	"net/url"
	"sort"
	"strings"
)

// Canonicalize encodes params as k=v pairs sorted by key, values query-escaped, joined with &.
// Keys in exclude and empty values are skipped; only the first value of a key is used.
func Canonicalize(params url.Values, exclude ...string) string {
	skip := make(map[string]struct{}, len(exclude))
	for _, k := range exclude {
		skip[k] = struct{}{}
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		if _, ok := skip[k]; ok {
			continue
		}
		if params.Get(k) == "" {
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
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}

func hmacHex(newHash func() hash.Hash, secret, data string) string {
	m := hmac.New(newHash, []byte(secret))
	m.Write([]byte(data))
	return hex.EncodeToString(m.Sum(nil))
}

// equalHex compares two hex digests case-insensitively in constant time.
func equalHex(a, b string) bool {
	return hmac.Equal([]byte(strings.ToLower(a)), []byte(strings.ToLower(b)))
}
