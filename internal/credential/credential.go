// Package credential supplies the bearer token shared by the archive and the
// inference backends. The token is read-only: nothing in visnote refreshes it.
package credential

import (
	"context"
	"errors"
	"strings"
)

// ErrMissing means no credential is available. Callers treat it as a failed
// precondition, not as a transient error.
var ErrMissing = errors.New("no credential available")

// Provider returns the current bearer token.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token. The empty string yields ErrMissing.
type Static string

func (s Static) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrMissing
	}
	return tok, nil
}

// Func adapts a function to Provider.
type Func func(ctx context.Context) (string, error)

func (f Func) Token(ctx context.Context) (string, error) { return f(ctx) }
