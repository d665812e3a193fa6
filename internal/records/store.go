// Package records owns the in-memory note list and the optimistic
// update/rollback discipline that keeps it in step with the remote archive.
package records

import (
	"log/slog"
	"sync"

	"github.com/kalambet/visnote/internal/note"
)

// Token captures the sequence that was current before an optimistic update.
// Passing it to Store.Rollback restores that exact sequence.
type Token struct {
	prev    note.Sequence
	version uint64 // version assigned by the update that produced this token
}

// Version is the store version produced by the update that issued the token.
func (t Token) Version() uint64 { return t.version }

// Previous returns a copy of the sequence the token restores.
func (t Token) Previous() note.Sequence { return t.prev.Clone() }

// Store holds the authoritative in-memory note sequence. Every mutation bumps
// a version counter so a rollback can tell whether it is overwriting a newer
// change.
type Store struct {
	mu      sync.RWMutex
	seq     note.Sequence
	version uint64
	logger  *slog.Logger
}

// NewStore creates a Store holding a copy of initial.
func NewStore(initial note.Sequence) *Store {
	return &Store{
		seq:    initial.Clone(),
		logger: slog.Default(),
	}
}

// Snapshot returns a copy of the current sequence.
func (s *Store) Snapshot() note.Sequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq.Clone()
}

// Len returns the number of notes currently visible.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seq)
}

// Version returns the number of mutations applied so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ApplyOptimistic replaces the visible sequence with next and returns a token
// for the sequence it replaced.
func (s *Store) ApplyOptimistic(next note.Sequence) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swap(next.Clone())
}

// Replace sets the visible sequence to next without issuing a rollback token.
// It is used for loads, which are not undone.
func (s *Store) Replace(next note.Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(next.Clone())
}

// Update computes the next sequence from the current one and applies it as a
// single step, so no other mutation can land between the read and the write.
// It returns the applied sequence and a rollback token.
func (s *Store) Update(fn func(cur note.Sequence) note.Sequence) (note.Sequence, Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.seq.Clone()).Clone()
	tok := s.swap(next)
	return next.Clone(), tok
}

func (s *Store) swap(next note.Sequence) Token {
	prev := s.seq
	s.seq = next
	s.version++
	return Token{prev: prev, version: s.version}
}

// Rollback restores the sequence captured in tok. If another mutation landed
// after tok was issued, that mutation is overwritten (last writer wins) and
// Rollback reports true.
func (s *Store) Rollback(tok Token) (overwrote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	overwrote = s.version != tok.version
	if overwrote {
		s.logger.Warn("rollback overwrote a newer mutation",
			"token_version", tok.version,
			"current_version", s.version,
		)
	}
	s.seq = tok.prev.Clone()
	s.version++
	return overwrote
}
