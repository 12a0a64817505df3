// Package auth models the capability check every state-mutating operation
// performs: a caller must prove control of the principal it acts as. The
// venue core never inspects credentials itself; it calls Authorize and
// aborts the operation on failure.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
)

// ErrDenied is returned when the calling context cannot prove control of the
// requested principal.
var ErrDenied = errors.New("authorization denied")

// Authorizer checks that the invoking context controls principal.
type Authorizer interface {
	Authorize(ctx context.Context, principal string) error
}

type secretKey struct{}

// WithSecret attaches the caller's presented credential to the context. The
// API layer populates this from the Authorization header.
func WithSecret(ctx context.Context, secret string) context.Context {
	return context.WithValue(ctx, secretKey{}, secret)
}

func secretFrom(ctx context.Context) string {
	s, _ := ctx.Value(secretKey{}).(string)
	return s
}

// AllowAll authorizes every principal. Used in tests and trusted single-user
// deployments.
type AllowAll struct{}

func (AllowAll) Authorize(ctx context.Context, principal string) error { return nil }

// SharedTokens authorizes a principal when the context carries that
// principal's configured secret.
type SharedTokens struct {
	tokens map[string]string
}

// NewSharedTokens builds an authorizer from a principal -> secret map.
func NewSharedTokens(tokens map[string]string) *SharedTokens {
	copied := make(map[string]string, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &SharedTokens{tokens: copied}
}

func (a *SharedTokens) Authorize(ctx context.Context, principal string) error {
	want, ok := a.tokens[principal]
	if !ok {
		return ErrDenied
	}
	got := secretFrom(ctx)
	if got == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrDenied
	}
	return nil
}
