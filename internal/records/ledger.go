package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/visnote/internal/note"
	"github.com/kalambet/visnote/internal/notify"
)

var (
	// ErrNotFound is returned by Remove when no note has the requested id.
	ErrNotFound = errors.New("note not found")
	// ErrInvalidSequence is matched by every *SequenceError.
	ErrInvalidSequence = errors.New("invalid note sequence")
)

// SequenceError reports why ReplaceAll refused a sequence.
type SequenceError struct {
	Index  int
	ID     string
	Reason string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("note %d (id %q): %s", e.Index, e.ID, e.Reason)
}

func (e *SequenceError) Is(target error) bool { return target == ErrInvalidSequence }

// validate checks that every note has an id and text and that no id repeats.
func validate(seq note.Sequence) error {
	seen := make(map[string]struct{}, len(seq))
	for i, n := range seq {
		switch {
		case n.ID == "":
			return &SequenceError{Index: i, Reason: "missing id"}
		case strings.TrimSpace(n.Text) == "":
			return &SequenceError{Index: i, ID: n.ID, Reason: "missing text"}
		}
		if _, dup := seen[n.ID]; dup {
			return &SequenceError{Index: i, ID: n.ID, Reason: "duplicate id"}
		}
		seen[n.ID] = struct{}{}
	}
	return nil
}

// Archive is the remote document store the ledger persists to.
type Archive interface {
	ReadAll(ctx context.Context, credential string) (note.Sequence, error)
	WriteAll(ctx context.Context, credential string, seq note.Sequence) error
}

// Credentials supplies the bearer token the archive requires.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// Ledger performs user-initiated mutations of the note list (load, delete,
// replace). Each mutation is applied optimistically to the Store, written to
// the Archive, and rolled back if the write fails.
type Ledger struct {
	store    *Store
	archive  Archive
	creds    Credentials
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewLedger wires a Ledger. notifier may be nil.
func NewLedger(store *Store, archive Archive, creds Credentials, notifier notify.Notifier) *Ledger {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Ledger{
		store:    store,
		archive:  archive,
		creds:    creds,
		notifier: notifier,
		logger:   slog.Default(),
	}
}

// Store returns the underlying Store.
func (l *Ledger) Store() *Store { return l.store }

// Load replaces the in-memory sequence with the archived one. On failure the
// sequence degrades to empty and the failure is reported; callers are expected
// to continue running.
func (l *Ledger) Load(ctx context.Context) error {
	cred, err := l.creds.Token(ctx)
	if err != nil {
		l.store.Replace(nil)
		l.notifier.Notify(notify.Error("Failed to load notes", fmt.Sprintf("No credential available: %v", err)))
		return fmt.Errorf("loading notes: %w", err)
	}

	seq, err := l.archive.ReadAll(ctx, cred)
	if err != nil {
		l.store.Replace(nil)
		l.logger.Error("loading notes from archive failed", "error", err)
		l.notifier.Notify(notify.Error("Failed to load notes", fmt.Sprintf("Could not retrieve your notes: %v", err)))
		return fmt.Errorf("loading notes: %w", err)
	}

	l.store.Replace(seq)
	l.logger.Info("notes loaded", "count", len(seq))
	return nil
}

// Remove deletes the note with the given id and persists the result.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	if _, ok := l.store.Snapshot().Find(id); !ok {
		return ErrNotFound
	}

	err := l.commit(ctx, func(cur note.Sequence) note.Sequence {
		next, _ := cur.Without(id)
		return next
	})
	if err != nil {
		l.notifier.Notify(notify.Error("Failed to delete note", fmt.Sprintf("Could not remove the note from the archive: %v", err)))
		return fmt.Errorf("removing note %s: %w", id, err)
	}

	l.notifier.Notify(notify.Info("Note deleted", "The note has been removed from the archive."))
	return nil
}

// ReplaceAll swaps the whole sequence for seq and persists it. A sequence
// with a missing or repeated id is refused with a *SequenceError before the
// store is touched.
func (l *Ledger) ReplaceAll(ctx context.Context, seq note.Sequence) error {
	if err := validate(seq); err != nil {
		return fmt.Errorf("replacing notes: %w", err)
	}
	err := l.commit(ctx, func(note.Sequence) note.Sequence {
		return seq
	})
	if err != nil {
		l.notifier.Notify(notify.Error("Failed to save notes", fmt.Sprintf("Could not save the note list: %v", err)))
		return fmt.Errorf("replacing notes: %w", err)
	}
	l.notifier.Notify(notify.Success("Notes saved", fmt.Sprintf("%d notes saved to the archive.", len(seq))))
	return nil
}

// commit applies mutate optimistically, writes the result, and restores the
// previous sequence when the write fails.
func (l *Ledger) commit(ctx context.Context, mutate func(note.Sequence) note.Sequence) error {
	cred, err := l.creds.Token(ctx)
	if err != nil {
		return err
	}

	next, tok := l.store.Update(mutate)
	if err := l.archive.WriteAll(ctx, cred, next); err != nil {
		l.store.Rollback(tok)
		l.logger.Warn("archive write failed, rolled back", "error", err, "version", tok.Version())
		return err
	}
	return nil
}
