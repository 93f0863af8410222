package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature computes the HMAC-SHA256 signature of a payload, formatted as
// "sha256=<hex>". Delivered in the X-Webhook-Signature header.
func Signature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether a signature matches the payload. Uses a
// constant-time comparison.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Signature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
