package note

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrMalformed is returned by Decode when the document is not a JSON array of notes.
var ErrMalformed = errors.New("malformed notes document")

// Note is one captured image together with its generated description.
// A Note is never edited after creation; removing it from a Sequence is the
// only way it changes state.
type Note struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a fresh ULID string timestamped at t. IDs produced within the
// same millisecond are strictly increasing.
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// New builds a Note with a fresh ID and the given capture time.
func New(image, text string, createdAt time.Time) Note {
	return Note{
		ID:        NewID(createdAt),
		Image:     image,
		Text:      text,
		CreatedAt: createdAt,
	}
}

// Sequence is an ordered list of notes, newest first.
type Sequence []Note

// Clone returns a copy that shares no backing array with s.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return Sequence{}
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// Prepend returns a new Sequence with n in front of s.
func (s Sequence) Prepend(n Note) Sequence {
	out := make(Sequence, 0, len(s)+1)
	out = append(out, n)
	return append(out, s...)
}

// Without returns a new Sequence with the note identified by id removed.
// The boolean reports whether such a note existed.
func (s Sequence) Without(id string) (Sequence, bool) {
	out := make(Sequence, 0, len(s))
	found := false
	for _, n := range s {
		if n.ID == id {
			found = true
			continue
		}
		out = append(out, n)
	}
	return out, found
}

// Find returns the note with the given id.
func (s Sequence) Find(id string) (Note, bool) {
	for _, n := range s {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}

// OnDay returns the notes whose CreatedAt falls on the same calendar day as
// day, both compared in loc. Order is preserved.
func (s Sequence) OnDay(day time.Time, loc *time.Location) Sequence {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.In(loc).Date()
	var out Sequence
	for _, n := range s {
		ny, nm, nd := n.CreatedAt.In(loc).Date()
		if ny == y && nm == m && nd == d {
			out = append(out, n)
		}
	}
	return out
}

// Encode serialises a Sequence as the archive document: a pretty-printed JSON array.
func Encode(s Sequence) ([]byte, error) {
	if s == nil {
		s = Sequence{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding notes: %w", err)
	}
	return data, nil
}

// Decode parses an archive document. An empty document decodes to an empty
// Sequence; anything that is not a JSON array of notes yields ErrMalformed.
func Decode(data []byte) (Sequence, error) {
	if len(data) == 0 {
		return Sequence{}, nil
	}
	var s Sequence
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s == nil {
		return Sequence{}, nil
	}
	return s, nil
}
