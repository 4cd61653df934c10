package signing

import (
	"errors"

	"exbitrage/internal/nonce"
)

const (
	DefaultNonceField     = "ts"
	DefaultSignatureField = "sig"
)

// JSONBodySigner injects a nonce into the parameters, signs their canonical JSON
// with HMAC-SHA256 and returns the body with the signature field added.
type JSONBodySigner struct {
	secret         []byte
	nonces         nonce.Source
	nonceField     string
	signatureField string
}

func NewJSONBodySigner(secret string, nonces nonce.Source) *JSONBodySigner {
	if nonces == nil {
		nonces = nonce.Seconds(nil)
	}
	return &JSONBodySigner{
		secret:         []byte(secret),
		nonces:         nonces,
		nonceField:     DefaultNonceField,
		signatureField: DefaultSignatureField,
	}
}

// Sign never mutates params.
func (s *JSONBodySigner) Sign(params map[string]any) (SignedPayload, error) {
	if s == nil {
		return SignedPayload{}, errors.New("nil signer")
	}
	data := make(map[string]any, len(params)+2)
	for k, v := range params {
		data[k] = v
	}
	ts := s.nonces.Next()
	data[s.nonceField] = ts
	delete(data, s.signatureField)

	unsigned, err := CanonicalJSON(data)
	if err != nil {
		return SignedPayload{}, err
	}
	sig := HMACSHA256Hex(s.secret, unsigned)
	data[s.signatureField] = sig

	body, err := CanonicalJSON(data)
	if err != nil {
		return SignedPayload{}, err
	}
	return SignedPayload{Body: body, Nonce: ts, Signature: sig}, nil
}
