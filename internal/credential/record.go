package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// RefreshWindow is how close to expiry an access token may get before it
// must be refreshed.
const RefreshWindow = 60 * time.Second

// Record is the persisted auth state. ExpiresAt is absolute Unix seconds.
type Record struct {
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Expiry returns ExpiresAt as a time.
func (r *Record) Expiry() time.Time {
	return time.Unix(r.ExpiresAt, 0)
}

// NeedsRefresh reports whether the access token expires within
// RefreshWindow of now.
func (r *Record) NeedsRefresh(now time.Time) bool {
	return r.ExpiresAt < now.Add(RefreshWindow).Unix()
}

// Token converts the record for use with an oauth2 transport.
func (r *Record) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: r.RefreshToken,
		Expiry:       r.Expiry(),
	}
}

// Subject returns the "sub" claim when the access token is a JWT. The
// signature is not verified; the registry does that on every request.
func (r *Record) Subject() (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(r.AccessToken, claims); err != nil {
		return "", fmt.Errorf("access token is not a JWT: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("access token has no subject")
	}
	return sub, nil
}
