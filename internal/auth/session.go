package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AnonymousUser is recorded on ledger rows when no session token is
// present or the token cannot be decoded.
const AnonymousUser = "anonymous"

var (
	// ErrInvalidToken is returned when a session token fails to verify.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrEmptyToken is returned when no token was supplied.
	ErrEmptyToken = errors.New("empty session token")
)

// UserIDFromLegacyToken extracts the username from a legacy session
// token: base64("username:timestamp"). The legacy scheme carries no
// signature, so the result is only ever used as a usage-ledger label,
// never as an authorization decision. Malformed tokens degrade to
// AnonymousUser rather than failing the caller.
func UserIDFromLegacyToken(token string) string {
	if token == "" {
		return AnonymousUser
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		// Frontends sometimes emit URL-safe base64.
		decoded, err = base64.URLEncoding.DecodeString(token)
		if err != nil {
			return AnonymousUser
		}
	}

	user, _, found := strings.Cut(string(decoded), ":")
	if !found || user == "" {
		return AnonymousUser
	}
	return user
}

// SessionSigner issues and verifies HMAC-signed session tokens. It
// replaces the legacy unsigned base64 scheme: a token that does not
// verify against the shared secret is rejected outright.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionSigner creates a signer with the given shared secret and
// token lifetime.
func NewSessionSigner(secret []byte, ttl time.Duration) *SessionSigner {
	return &SessionSigner{secret: secret, ttl: ttl}
}

// Issue creates a signed session token for a username.
func (s *SessionSigner) Issue(username string) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks a signed session token and returns the username it was
// issued for.
func (s *SessionSigner) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrEmptyToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// UserID resolves a token of either scheme to a ledger user id. Signed
// tokens are tried first; anything that fails verification falls back
// to the legacy decoder, and from there to AnonymousUser.
func (s *SessionSigner) UserID(token string) string {
	if user, err := s.Verify(token); err == nil {
		return user
	}
	return UserIDFromLegacyToken(token)
}
