package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw body, hex encoded
// with a "sha256=" prefix.
const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature checks a GitHub webhook signature against the raw body.
func VerifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return errors.New("webhook signature: secret is empty")
	}
	if signature == "" {
		return errors.New("webhook signature: header missing")
	}
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return errors.New("webhook signature: unsupported algorithm")
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return fmt.Errorf("webhook signature: invalid hex: %w", err)
	}
	if !hmac.Equal(Sign(secret, body), got) {
		return errors.New("webhook signature: mismatch")
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureValue formats a signature the way GitHub sends it.
func SignatureValue(secret, body []byte) string {
	return "sha256=" + hex.EncodeToString(Sign(secret, body))
}
