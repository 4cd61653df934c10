// Package signing builds authenticated request payloads for the two signing
// schemes in use: an HMAC-SHA256 digest over a canonical JSON body, and an
// HMAC-SHA512 digest over a sorted key=value query string.
package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"hash"
)

type SignedPayload struct {
	Body      []byte
	Nonce     int64
	Signature string
}

// CanonicalJSON serializes v with sorted map keys and no insignificant whitespace.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func HMACSHA256Hex(secret, payload []byte) string {
	return hmacHex(sha256.New, secret, payload)
}

func HMACSHA512Hex(secret, payload []byte) string {
	return hmacHex(sha512.New, secret, payload)
}

func hmacHex(h func() hash.Hash, secret, payload []byte) string {
	mac := hmac.New(h, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
