// Package archive persists the note list as a single JSON document in a
// remote store. Reads and writes always cover the whole document.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/visnote/internal/note"
)

// Failure kinds. Use errors.Is against an error returned by Archive.
var (
	ErrNotFound      = errors.New("document not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUnreachable   = errors.New("archive unreachable")
	ErrMalformed     = errors.New("malformed document")
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// DefaultName is the logical document name notes are stored under.
const DefaultName = "visual_notes.json"

// Error describes a failed archive operation.
type Error struct {
	Op   string // "read" or "write"
	Kind error  // one of the Err* kinds
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("archive %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("archive %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Backend stores raw documents by name. Get returns ErrNotFound for a missing
// document. Errors wrapping ErrQuotaExceeded or ErrUnauthorized keep that
// kind; any other error is treated as ErrUnreachable.
type Backend interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Close() error
}

// Options configures an Archive.
type Options struct {
	// Name is the document name. Defaults to DefaultName.
	Name string
	// MaxBytes rejects writes whose encoded document is larger. 0 disables.
	MaxBytes int
	// Authorizer validates the caller's credential. Required.
	Authorizer Authorizer
}

// Archive implements whole-document reads and writes of a note sequence on
// top of a Backend.
type Archive struct {
	backend  Backend
	name     string
	maxBytes int
	auth     Authorizer
	logger   *slog.Logger
}

// New creates an Archive over backend.
func New(backend Backend, opts Options) *Archive {
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	auth := opts.Authorizer
	if auth == nil {
		auth = denyAll{}
	}
	return &Archive{
		backend:  backend,
		name:     name,
		maxBytes: opts.MaxBytes,
		auth:     auth,
		logger:   slog.Default(),
	}
}

// Name returns the document name.
func (a *Archive) Name() string { return a.name }

// Close closes the backend.
func (a *Archive) Close() error { return a.backend.Close() }

// ReadAll returns the archived sequence. A missing document is an empty
// sequence, not an error.
func (a *Archive) ReadAll(ctx context.Context, credential string) (note.Sequence, error) {
	if err := a.auth.Authorize(credential); err != nil {
		return nil, &Error{Op: "read", Kind: ErrUnauthorized, Err: err}
	}

	data, err := a.backend.Get(ctx, a.name)
	if errors.Is(err, ErrNotFound) {
		a.logger.Debug("archive document missing, starting empty", "name", a.name)
		return note.Sequence{}, nil
	}
	if err != nil {
		return nil, classify("read", err)
	}

	seq, err := note.Decode(data)
	if err != nil {
		return nil, &Error{Op: "read", Kind: ErrMalformed, Err: err}
	}
	return seq, nil
}

// WriteAll replaces the archived document with seq.
func (a *Archive) WriteAll(ctx context.Context, credential string, seq note.Sequence) error {
	if err := a.auth.Authorize(credential); err != nil {
		return &Error{Op: "write", Kind: ErrUnauthorized, Err: err}
	}

	data, err := note.Encode(seq)
	if err != nil {
		return &Error{Op: "write", Kind: ErrMalformed, Err: err}
	}
	if a.maxBytes > 0 && len(data) > a.maxBytes {
		return &Error{
			Op:   "write",
			Kind: ErrQuotaExceeded,
			Err:  fmt.Errorf("document is %d bytes, limit %d", len(data), a.maxBytes),
		}
	}

	if err := a.backend.Put(ctx, a.name, data); err != nil {
		return classify("write", err)
	}
	a.logger.Debug("archive document written", "name", a.name, "notes", len(seq), "bytes", len(data))
	return nil
}

func classify(op string, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	for _, kind := range []error{ErrUnauthorized, ErrQuotaExceeded, ErrMalformed} {
		if errors.Is(err, kind) {
			return &Error{Op: op, Kind: kind, Err: err}
		}
	}
	return &Error{Op: op, Kind: ErrUnreachable, Err: err}
}
