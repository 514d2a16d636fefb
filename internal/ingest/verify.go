package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier authenticates a raw webhook body against its signature header
type Verifier interface {
	Verify(payload []byte, signature string) bool
}

// HMACVerifier checks a hex-encoded HMAC-SHA256 of the raw request body
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier with the shared provider secret
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify computes the expected signature and compares in constant time
func (v *HMACVerifier) Verify(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// NoopVerifier accepts every payload. Used when no signing secret is
// configured (development only).
type NoopVerifier struct{}

func (NoopVerifier) Verify([]byte, string) bool { return true }
