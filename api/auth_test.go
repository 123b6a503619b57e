package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func testAuth(secret []byte) *Auth {
	return &Auth{
		Audience:   "api://aud",
		Issuer:     "https://issuer/",
		TestMode:   true,
		TestSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func TestUserIDFromAuthHeaderHS256(t *testing.T) {
	secret := []byte("test-secret")
	signed := signToken(t, secret, baseClaims())

	userID, err := testAuth(secret).UserIDFromAuthHeader("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromAuthHeaderMissing(t *testing.T) {
	if _, err := testAuth([]byte("s")).UserIDFromAuthHeader(""); err == nil || err.Error() != "missing authorization header" {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestUserIDFromAuthHeaderMalformed(t *testing.T) {
	auth := testAuth([]byte("s"))
	for _, h := range []string{"Bearer", "Basic abc", "Bearer not.a", "Bearer a.b.c.d"} {
		if _, err := auth.UserIDFromAuthHeader(h); err == nil {
			t.Fatalf("expected error for header %q", h)
		}
	}
}

func TestUserIDFromAuthHeaderExpired(t *testing.T) {
	secret := []byte("test-secret")
	claims := baseClaims()
	claims["exp"] = time.Now().Add(-10 * time.Minute).Unix()
	signed := signToken(t, secret, claims)

	if _, err := testAuth(secret).UserIDFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestUserFromAuthHeaderProfileClaims(t *testing.T) {
	secret := []byte("test-secret")
	claims := baseClaims()
	claims["name"] = "Ada Lovelace"
	claims["email"] = "ada@example.com"
	claims["picture"] = "https://example.com/ada.png"
	signed := signToken(t, secret, claims)

	user, err := testAuth(secret).UserFromAuthHeader("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.UID != "user-123" {
		t.Fatalf("unexpected uid: %s", user.UID)
	}
	if user.DisplayName != "Ada Lovelace" || user.Email != "ada@example.com" || user.PhotoURL != "https://example.com/ada.png" {
		t.Fatalf("unexpected profile: %#v", user)
	}
}

func TestUserFromAuthHeaderProfileClaimsOptional(t *testing.T) {
	secret := []byte("test-secret")
	signed := signToken(t, secret, baseClaims())

	user, err := testAuth(secret).UserFromAuthHeader("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.UID != "user-123" || user.DisplayName != "" || user.Email != "" || user.PhotoURL != "" {
		t.Fatalf("unexpected user: %#v", user)
	}
}
