package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// verifySignature verifies an HMAC-SHA256 signature against the raw request body.
//
// Notion signs the raw body with the verification token and sends the result
// as "sha256=<hex>". The comparison is constant-time (crypto/subtle) to
// prevent timing attacks, and any failure mode returns the same generic
// error so no format details leak.
func verifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return fmt.Errorf("webhook verification failed")
	}

	if signature == "" {
		return fmt.Errorf("webhook verification failed")
	}

	expected := computeSignature(body, secret)

	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return fmt.Errorf("webhook verification failed")
	}

	return nil
}

// computeSignature computes the "sha256=<hex>" signature for a body.
func computeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
