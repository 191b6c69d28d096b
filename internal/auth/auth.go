// Package auth authenticates requests to the broadcast endpoints.
//
// Tokens are HS256 JWTs. Browsers cannot set headers on a WebSocket upgrade,
// so the token is accepted from the Authorization header or from the
// "token" query parameter.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken means the request carried no token.
	ErrMissingToken = errors.New("auth: missing token")

	// ErrInvalidToken means the token failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenQueryParam is the query parameter read when no header is present.
const TokenQueryParam = "token"

// Authenticator decides whether a request may use the broadcast endpoints.
type Authenticator interface {
	// Authenticate returns the request's subject, or an error wrapping
	// ErrMissingToken or ErrInvalidToken.
	Authenticate(r *http.Request) (subject string, err error)
}

// Anonymous admits every request with an empty subject.
type Anonymous struct{}

// Authenticate always succeeds.
func (Anonymous) Authenticate(*http.Request) (string, error) {
	return "", nil
}

// JWT verifies HS256 bearer tokens against a shared secret.
type JWT struct {
	secret []byte
	parser *gojwt.Parser
}

// NewJWT creates a [JWT] authenticator. secret must not be empty.
func NewJWT(secret []byte) (*JWT, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &JWT{
		secret: secret,
		parser: gojwt.NewParser(
			gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
			gojwt.WithExpirationRequired(),
			gojwt.WithLeeway(5*time.Second),
		),
	}, nil
}

// Authenticate verifies the request's token and returns its "sub" claim.
func (j *JWT) Authenticate(r *http.Request) (string, error) {
	raw := TokenFromRequest(r)
	if raw == "" {
		return "", ErrMissingToken
	}

	var claims gojwt.RegisteredClaims
	token, err := j.parser.ParseWithClaims(raw, &claims, func(*gojwt.Token) (any, error) {
		return j.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Issue signs a token for subject valid for ttl. Intended for tooling and
// tests; the broadcast service itself never issues tokens.
func (j *JWT) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := gojwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// TokenFromRequest extracts a bearer token from the Authorization header,
// falling back to the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(TokenQueryParam)
}
