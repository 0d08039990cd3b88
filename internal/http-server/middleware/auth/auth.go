// Package auth turns a bearer JWT into the acting identity of a request.
// Token issuance belongs to the authentication service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"CommentThreads/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

// Claims carried by tokens of the authentication service.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrNoToken  = errors.New("no bearer token")
	ErrNoSecret = errors.New("jwt secret is not configured")
)

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Parse validates the token and returns the identity in it. The subject
// claim is the user id.
func (v *Verifier) Parse(token string) (models.Identity, error) {
	const op = "auth.Verifier.Parse"

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if len(v.secret) == 0 {
			return nil, ErrNoSecret
		}
		return v.secret, nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	if claims.Subject == "" {
		return models.Identity{}, fmt.Errorf("%s: token has no subject", op)
	}

	return models.Identity{ID: claims.Subject, Name: claims.Name}, nil
}

// Sign issues a token for id. Used by tests and threadctl.
func (v *Verifier) Sign(id models.Identity) (string, error) {
	claims := Claims{
		Name:             id.Name,
		RegisteredClaims: jwt.RegisteredClaims{Subject: id.ID},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// New attaches the identity of a valid bearer token to the request context.
// Requests without a valid token pass through anonymously; handlers decide
// whether they need an identity.
func New(log *slog.Logger, v *Verifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		log := log.With(slog.String("component", "middleware/auth"))

		fn := func(w http.ResponseWriter, r *http.Request) {
			token, err := tokenFromRequest(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			id, err := v.Parse(token)
			if err != nil {
				log.Warn("invalid token", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		}

		return http.HandlerFunc(fn)
	}
}

// tokenFromRequest reads the Authorization header, falling back to the
// "token" query parameter, which browsers need for websocket upgrades.
func tokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:]), nil
		}
		return "", ErrNoToken
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return q, nil
	}
	return "", ErrNoToken
}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the acting identity, if any.
func FromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(models.Identity)
	return id, ok && id.ID != ""
}
