package session

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var base64URLToStd = strings.NewReplacer("-", "+", "_", "/")

// DecodeSegment decodes a base64url JWT segment, tolerating missing padding.
func DecodeSegment(segment string) ([]byte, error) {
	s := base64URLToStd.Replace(segment)
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return base64.StdEncoding.DecodeString(s)
}

// ExpiresAt returns the expiry encoded in token's exp claim.
//
// The signature is not verified. The server remains the authority; the
// client only uses exp to decide whether to refresh.
func ExpiresAt(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	decoded, err := DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsJWTActive reports whether token's exp lies after now. Any decode failure
// counts as expired.
func IsJWTActive(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return exp.After(now)
}
