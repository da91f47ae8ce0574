package auth

import "crypto/subtle"

// AdminVerifier guards operator endpoints with a static shared token.
type AdminVerifier struct {
	token []byte
}

// NewAdminVerifier builds verifier. An empty token disables operator access.
func NewAdminVerifier(token string) *AdminVerifier {
	return &AdminVerifier{token: []byte(token)}
}

// Enabled reports whether operator access is configured.
func (v *AdminVerifier) Enabled() bool {
	return len(v.token) > 0
}

// Verify compares presented token in constant time.
func (v *AdminVerifier) Verify(presented string) bool {
	if !v.Enabled() {
		return false
	}
	return subtle.ConstantTimeCompare(v.token, []byte(presented)) == 1
}
