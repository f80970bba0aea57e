// Package auth verifies bearer tokens and carries the caller's id through
// request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the fields the mobile apps sign into their tokens. Only id is
// required; riders and owners share the same shape.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens signed with the shared server secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign issues a token for id. The server never logs users in itself; this
// backs the test rider tooling and the handler tests.
func (v *Verifier) Sign(id string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{ID: id})
	return token.SignedString(v.secret)
}

// Verify returns the caller id encoded in tokenString.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}

// FromRequest reads the token from the Authorization header, falling back to
// the access_token query parameter browsers use for websocket upgrades.
func (v *Verifier) FromRequest(r *http.Request) (string, error) {
	raw := r.Header.Get("Authorization")
	if raw != "" {
		scheme, token, ok := strings.Cut(raw, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return "", ErrMissingToken
		}
		return v.Verify(strings.TrimSpace(token))
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return v.Verify(token)
	}
	return "", ErrMissingToken
}

type contextKey struct{}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
