// Package jwt reads claims out of backend bearer tokens without verifying
// them. The backend owns the signing key; the client only uses the claims to
// skip a round trip for a token that has plainly expired and for display.
package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var ErrNotJWT = errors.New("token is not a JWT")

// Claims is the subset of registered claims the client looks at.
type Claims struct {
	Sub string
	Exp *time.Time
	Iat *time.Time
}

// Expired reports whether the token carries an exp claim that is not after now.
func (c *Claims) Expired(now time.Time) bool {
	return c.Exp != nil && !now.Before(*c.Exp)
}

// Inspect parses raw without signature verification. Tokens that do not
// have the three-segment JWT shape yield ErrNotJWT.
func Inspect(raw string) (*Claims, error) {
	if strings.Count(raw, ".") != 2 {
		return nil, ErrNotJWT
	}

	mc := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, mc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	c := &Claims{}
	c.Sub, _ = mc.GetSubject()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		c.Exp = &t
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		c.Iat = &t
	}
	return c, nil
}

// LocallyExpired is true only for a well-formed JWT whose exp has passed.
// Opaque tokens are never considered expired here.
func LocallyExpired(raw string) bool {
	c, err := Inspect(raw)
	if err != nil {
		return false
	}
	return c.Expired(NowTimeFunc())
}
