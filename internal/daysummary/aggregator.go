// Package daysummary asks the text model for a synthesis of one calendar
// day's notes. Only the most recent day selection may publish a result.
package daysummary

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/visnote/internal/inference"
	"github.com/kalambet/visnote/internal/note"
)

// DateLayout is the wire format of a selected day.
const DateLayout = "2006-01-02"

// Status of the current selection.
type Status string

const (
	StatusNone    Status = "none"    // nothing selected yet
	StatusEmpty   Status = "empty"   // selected day has no notes
	StatusLoading Status = "loading" // synthesis request in flight
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Source provides the note list to summarize.
type Source interface {
	Snapshot() note.Sequence
}

// View is the state of the current selection.
type View struct {
	Day        string    `json:"day,omitempty"`
	Status     Status    `json:"status"`
	NoteCount  int       `json:"note_count"`
	Summary    string    `json:"summary,omitempty"`
	Error      string    `json:"error,omitempty"`
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Aggregator holds the summary for the selected day. Each Select starts a new
// generation; a request finishing under an older generation is discarded.
// Notes added after a selection do not refresh it; select the day again.
type Aggregator struct {
	src    Source
	svc    inference.Service
	loc    *time.Location
	logger *slog.Logger

	mu   sync.Mutex
	gen  uint64
	view View
	wg   sync.WaitGroup
}

// New creates an Aggregator. Days are matched in loc; nil means time.Local.
func New(src Source, svc inference.Service, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{
		src:    src,
		svc:    svc,
		loc:    loc,
		logger: slog.Default(),
		view:   View{Status: StatusNone},
	}
}

// Location returns the zone days are matched in.
func (a *Aggregator) Location() *time.Location { return a.loc }

// ParseDay parses a YYYY-MM-DD date in the aggregator's zone.
func (a *Aggregator) ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, a.loc)
}

// Select makes day the current selection and returns its generation. If the
// day has notes, one synthesis request is started in the background; an
// empty day clears the previous result without a request. The request is
// not tied to ctx's cancellation.
func (a *Aggregator) Select(ctx context.Context, day time.Time) uint64 {
	notes := a.src.Snapshot().OnDay(day, a.loc)
	dayStr := day.In(a.loc).Format(DateLayout)

	a.mu.Lock()
	a.gen++
	gen := a.gen
	if len(notes) == 0 {
		a.view = View{Day: dayStr, Status: StatusEmpty, Generation: gen, UpdatedAt: time.Now()}
		a.mu.Unlock()
		return gen
	}
	a.view = View{Day: dayStr, Status: StatusLoading, NoteCount: len(notes), Generation: gen}
	a.mu.Unlock()

	prompt := Prompt(notes)
	ctx = context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		summary, err := a.svc.Summarize(ctx, prompt, inference.SummaryInstruction)
		a.complete(gen, summary, err)
	}()
	return gen
}

func (a *Aggregator) complete(gen uint64, summary string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.gen {
		a.logger.Debug("discarding stale day summary", "generation", gen, "current", a.gen)
		return
	}

	a.view.UpdatedAt = time.Now()
	if err != nil {
		a.logger.Warn("day summary failed", "day", a.view.Day, "error", err)
		a.view.Status = StatusFailed
		a.view.Error = err.Error()
		return
	}
	a.view.Status = StatusReady
	a.view.Summary = summary
}

// View returns the current selection state.
func (a *Aggregator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// Wait blocks until every request started so far has finished.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

// Prompt renders a day's notes as the bulleted list sent for synthesis.
func Prompt(notes note.Sequence) string {
	var b strings.Builder
	b.WriteString("Notes:\n")
	for i, n := range notes {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(n.Text)
	}
	return b.String()
}
