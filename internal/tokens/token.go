// Package tokens caches per-backend OAuth2 bearer tokens.
//
// A token is usable only while now < ExpiresAt - ExpirySkew, so a slow
// outbound call never starts with a token that expires mid-flight. All
// instants are normalized to UTC when they enter the package and compared in
// UTC.
//
// Concurrent acquisitions for the same backend are not coalesced: both callers
// exchange credentials and the last Save wins. Entries are replaced whole, so
// a reader never sees a token paired with another token's expiry.
package tokens

import (
	"context"
	"time"
)

// ExpirySkew is subtracted from every token's expiry before it is used.
const ExpirySkew = 30 * time.Second

// CachedToken is one backend's bearer token and its absolute expiry.
type CachedToken struct {
	Backend   string    `json:"backend"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCachedToken builds an entry expiring expiresIn after issuedAt.
func NewCachedToken(backend, token string, issuedAt time.Time, expiresIn time.Duration) CachedToken {
	return CachedToken{
		Backend:   backend,
		Token:     token,
		ExpiresAt: issuedAt.UTC().Add(expiresIn),
	}
}

// UsableAt reports whether the token may still be sent at now.
func (t CachedToken) UsableAt(now time.Time) bool {
	if t.Token == "" {
		return false
	}
	return now.UTC().Before(t.ExpiresAt.UTC().Add(-ExpirySkew))
}

// Store is the cache repository behind the token cache. Load returns an error
// wrapping sentinel.ErrNotFound when no entry exists for the backend.
type Store interface {
	Load(ctx context.Context, backend string) (CachedToken, error)
	Save(ctx context.Context, token CachedToken) error
}
