// Package identity carries the signed-in user through request contexts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

// ErrUnauthenticated reports a missing or rejected credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// User is the caller identity. Token is the credential it was proven with
// and is forwarded to remote procedures.
type User struct {
	ID    string
	Token string
}

type ctxKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user stored in ctx.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok && u.ID != ""
}

// Source resolves the current user id.
type Source interface {
	UserID(ctx context.Context) (string, bool)
}

// ContextSource reads the user placed in the context by WithUser.
type ContextSource struct{}

// UserID implements Source.
func (ContextSource) UserID(ctx context.Context) (string, bool) {
	u, ok := FromContext(ctx)
	return u.ID, ok
}

// Static always resolves to the same user id; empty means signed out.
type Static string

// UserID implements Source.
func (s Static) UserID(context.Context) (string, bool) {
	return string(s), s != ""
}

// Verifier turns a bearer credential into a User.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// FirebaseVerifier checks Firebase ID tokens.
type FirebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier creates a verifier from a Firebase app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify implements Verifier.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	t, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return User{ID: t.UID, Token: token}, nil
}

// InsecureVerifier accepts the token itself as the user id. Local
// development only.
type InsecureVerifier struct{}

// Verify implements Verifier.
func (InsecureVerifier) Verify(_ context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	return User{ID: token, Token: token}, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
