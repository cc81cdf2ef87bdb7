package auth

import (
	"time"
)

// expirySkew is subtracted from a token's nominal expiry before the
// usability check, so a token goes stale slightly before the upstream
// would start rejecting it, never after.
const expirySkew = 30 * time.Second

// AccessToken is a bearer credential issued by the upstream music API's
// token endpoint. Tokens live in process memory only and are replaced
// wholesale on every successful refresh.
type AccessToken struct {
	Value     string    // opaque bearer credential
	TokenType string    // authentication scheme label, defaults to "Bearer"
	ExpiresIn int       // validity window reported by the issuer, in seconds
	ExpiresAt time.Time // acquisition time plus ExpiresIn
	Scopes    []string  // informational, not used for access control
}

// Usable reports whether the token can still authenticate a request at
// the given instant, leaving the skew window before the real expiry.
func (t *AccessToken) Usable(now time.Time) bool {
	if t == nil || t.Value == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-expirySkew))
}

// Header returns the value for an Authorization header, e.g. "Bearer abc123".
func (t *AccessToken) Header() string {
	return t.TokenType + " " + t.Value
}
