package api

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"dayplan-api/domain"
)

// Auth validates incoming JWT tokens.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser *jwt.Parser
}

// NewAuth creates a new Auth instance.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		a.TestMode = true
		a.TestSecret = []byte(secret)
	}
	if a.TestMode {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

func (a *Auth) claimsFromAuthHeader(h string) (jwt.MapClaims, error) {
	if h == "" {
		return nil, errors.New("missing authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errors.New("bad auth header")
	}
	tokenStr := parts[1]
	if strings.Count(tokenStr, ".") != 2 {
		return nil, errors.New("bad auth header")
	}

	var keyfn jwt.Keyfunc
	if a.TestMode {
		keyfn = func(*jwt.Token) (interface{}, error) { return a.TestSecret, nil }
	} else {
		keyfn = a.JWKS.Keyfunc
	}
	token, err := a.parser.Parse(tokenStr, keyfn)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, errors.New("token not valid yet")
	}
	if !claims.VerifyAudience(a.Audience, false) {
		return nil, errors.New("invalid audience")
	}
	if !claims.VerifyIssuer(a.Issuer, false) {
		return nil, errors.New("invalid issuer")
	}
	return claims, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	claims, err := a.claimsFromAuthHeader(h)
	if err != nil {
		return "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

// UserFromAuthHeader resolves the full authenticated user from the
// Authorization header. Profile claims beyond sub are optional.
func (a *Auth) UserFromAuthHeader(h string) (domain.User, error) {
	claims, err := a.claimsFromAuthHeader(h)
	if err != nil {
		return domain.User{}, err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.User{}, errors.New("missing sub")
	}
	user := domain.User{UID: sub}
	if name, ok := claims["name"].(string); ok {
		user.DisplayName = name
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if picture, ok := claims["picture"].(string); ok {
		user.PhotoURL = picture
	}
	return user, nil
}
