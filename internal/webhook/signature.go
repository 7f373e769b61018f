package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// ErrSignatureInvalid is returned when a signature header does not match the
// body.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// VerifySignature checks header against the HMAC of body under secret. An
// absent header passes; a present header never passes without a secret.
func VerifySignature(secret string, body []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if secret == "" {
		return ErrSignatureInvalid
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return ErrSignatureInvalid
	}
	if !hmac.Equal(provided, Sign(secret, body)) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign computes the raw HMAC-SHA256 of body.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureValue renders the header value for body, as the platform sends it.
func SignatureValue(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(Sign(secret, body))
}
