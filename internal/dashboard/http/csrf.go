package dashboardhttp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const csrfFormField = "csrf_token"

var (
	errCSRFTokenMissing  = errors.New("csrf token missing")
	errCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// csrfSigner derives a per-session token as an HMAC of the session id, so no
// token state is stored alongside the in-memory session.
type csrfSigner struct {
	secret []byte
}

func newCSRFSigner(secret string) *csrfSigner {
	return &csrfSigner{secret: []byte(secret)}
}

func (s *csrfSigner) token(sessionID string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte("dashboard|"))
	_, _ = mac.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *csrfSigner) verify(sessionID, token string) error {
	if token == "" {
		return errCSRFTokenMissing
	}
	if !hmac.Equal([]byte(s.token(sessionID)), []byte(token)) {
		return errCSRFTokenMismatch
	}
	return nil
}
