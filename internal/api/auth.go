package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ScopeFund allows crediting wallets. Only the backend that verified the
// external payment holds it.
const ScopeFund = "wallet:fund"

var errUnauthorized = errors.New("unauthorized")

type ctxKey struct{}

type principal struct {
	ownerID string
	scopes  []string
}

// Claims are the access token claims issued by the hosted backend. The
// subject is the wallet owner id.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 access tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

func (a *Authenticator) parse(token string) (principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return principal{}, fmt.Errorf("%w: %w", errUnauthorized, err)
	}

	owner, err := uuid.Parse(claims.Subject)
	if err != nil {
		return principal{}, fmt.Errorf("%w: subject is not a uuid", errUnauthorized)
	}

	return principal{ownerID: owner.String(), scopes: strings.Fields(claims.Scope)}, nil
}

// Middleware rejects requests without a valid bearer token. The token may
// also come from the access_token query parameter, since browsers cannot
// set headers on websocket upgrades.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		p, err := a.parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated requests whose token lacks scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := r.Context().Value(ctxKey{}).(principal)
			if !ok || !slices.Contains(p.scopes, scope) {
				writeError(w, http.StatusForbidden, "missing scope "+scope)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OwnerID returns the authenticated wallet owner.
func OwnerID(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(ctxKey{}).(principal)
	return p.ownerID, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}

	return r.URL.Query().Get("access_token")
}
