package signing

import (
	"net/http"
	"sort"
	"strings"
)

// QueryString joins key=value pairs sorted by key with '&'. Values are written
// verbatim, without URL escaping, because the digest covers the exact text.
func QueryString(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
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

// QueryStringSigner signs a parameter string with HMAC-SHA512 and carries the
// key and digest in the Authorization and Signature headers.
type QueryStringSigner struct {
	scheme string
	key    string
	secret []byte
}

func NewQueryStringSigner(scheme, key, secret string) *QueryStringSigner {
	return &QueryStringSigner{scheme: scheme, key: key, secret: []byte(secret)}
}

func (s *QueryStringSigner) Sign(payload string) string {
	return HMACSHA512Hex(s.secret, []byte(payload))
}

func (s *QueryStringSigner) Headers(payload string) http.Header {
	h := http.Header{}
	auth := s.key
	if s.scheme != "" {
		auth = s.scheme + " " + s.key
	}
	h.Set("Authorization", auth)
	h.Set("Signature", s.Sign(payload))
	return h
}
