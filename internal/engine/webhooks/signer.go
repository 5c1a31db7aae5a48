package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "X-Signature-256"
	signaturePrefix = "sha256="
)

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// SignatureValue is the X-Signature-256 header value for payload.
func SignatureValue(secret string, payload []byte) string {
	return signaturePrefix + Sign(secret, payload)
}

// VerifySignature is the receiver-side check: it recomputes the HMAC over the
// exact raw body and compares in constant time.
func VerifySignature(secret string, body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hmac.Equal(got, h.Sum(nil))
}
