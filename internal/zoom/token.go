package zoom

import "time"

// TokenCache holds a bearer token and the instant it stops being valid.
type TokenCache struct {
	Token     string
	ExpiresAt time.Time
}

// Fresh reports whether the token can still be used at now, keeping margin in reserve.
// A token is refreshed once now >= ExpiresAt - margin.
func (t TokenCache) Fresh(now time.Time, margin time.Duration) bool {
	if t.Token == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-margin))
}
