// Package revocation tracks bearer tokens that were invalidated before their
// natural expiry. Entries expire on their own: a lookup treats an entry as
// absent from its expiry instant onwards, and Sweep reclaims the space.
package revocation

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Cache is a self-expiring set of revoked token fingerprints.
type Cache interface {
	// Revoke marks fingerprint as revoked until expiresAt. It is a no-op
	// when expiresAt is not in the future, and an entry that is still
	// active keeps its original expiry.
	Revoke(ctx context.Context, fingerprint string, expiresAt time.Time) error
	// IsRevoked reports whether an unexpired entry exists.
	IsRevoked(ctx context.Context, fingerprint string) (bool, error)
	// Sweep deletes expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Fingerprint is the revocation key for a raw token: the hex BLAKE2b-256
// digest, so raw tokens are never stored.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// normalizeExpiry truncates to millisecond resolution, the precision every
// backend stores.
func normalizeExpiry(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
