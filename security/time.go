package security

import "time"

// IsExpired reports whether the given expiry has passed. A zero expiry
// means the record never expires.
func IsExpired(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt)
}

// IsExpiringSoon reports whether the expiry falls within the threshold
func IsExpiringSoon(expiresAt time.Time, threshold time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(threshold).After(expiresAt)
}
