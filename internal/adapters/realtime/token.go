package realtime

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type tokenClaims struct {
	ExpiresAt *float64 `json:"exp"`
}

// tokenExpiry decodes the exp claim of a JWT without verifying it. Opaque
// tokens report no expiry.
func tokenExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return time.Time{}, false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}, false
	}

	var claims tokenClaims
	if err := json.Unmarshal(decoded, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return time.Unix(int64(*claims.ExpiresAt), 0).UTC(), true
}

func tokenExpired(token string, now time.Time) bool {
	expiry, ok := tokenExpiry(token)
	return ok && !expiry.After(now)
}
