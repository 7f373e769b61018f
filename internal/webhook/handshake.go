// Package webhook implements the push-notification gateway: subscription
// handshakes, payload signature checks, event decoding and detached ingestion.
package webhook

import (
	"crypto/subtle"
	"errors"
)

// ModeSubscribe is the only handshake mode the platform sends.
const ModeSubscribe = "subscribe"

// ErrHandshakeRejected is returned for any handshake that must be answered 403.
var ErrHandshakeRejected = errors.New("webhook handshake rejected")

// HandshakeRequest carries the hub.* query parameters of a verification call.
type HandshakeRequest struct {
	Mode        string
	VerifyToken string
	Challenge   string
}

// VerifyHandshake returns the challenge to echo when the request is a
// subscribe call carrying the configured token and a challenge. An empty
// configured token rejects every handshake.
func VerifyHandshake(req HandshakeRequest, verifyToken string) (string, error) {
	if req.Mode != ModeSubscribe || req.Challenge == "" || verifyToken == "" {
		return "", ErrHandshakeRejected
	}
	if subtle.ConstantTimeCompare([]byte(req.VerifyToken), []byte(verifyToken)) != 1 {
		return "", ErrHandshakeRejected
	}
	return req.Challenge, nil
}
