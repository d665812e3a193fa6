// Package pipeline turns queued captures into persisted notes. A single
// Processor takes one job at a time from the capture queue, asks the
// inference service for a description, prepends the note to the store
// optimistically and writes the whole list to the archive, rolling the store
// back when that write fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kalambet/visnote/internal/archive"
	"github.com/kalambet/visnote/internal/capture"
	"github.com/kalambet/visnote/internal/credential"
	"github.com/kalambet/visnote/internal/inference"
	"github.com/kalambet/visnote/internal/note"
	"github.com/kalambet/visnote/internal/notify"
	"github.com/kalambet/visnote/internal/records"
)

// Deps are the collaborators of a Processor. Notifier, Logger and Now are
// optional.
type Deps struct {
	Queue       *capture.Queue
	Store       *records.Store
	Inference   inference.Service
	Archive     records.Archive
	Credentials credential.Provider
	Notifier    notify.Notifier
	Logger      *slog.Logger
	Now         func() time.Time

	// PollInterval is how often Run re-checks the queue without a wake-up
	// signal. Defaults to 1s.
	PollInterval time.Duration
	// Observer, when set, is called on every state transition.
	Observer func(from, to State)
}

// Stats is a point-in-time view of the processor.
type Stats struct {
	State               string `json:"state"`
	QueueLength         int    `json:"queue_length"`
	Processed           uint64 `json:"processed"`
	Committed           uint64 `json:"committed"`
	GenerationFailures  uint64 `json:"generation_failures"`
	PersistenceFailures uint64 `json:"persistence_failures"`
	PreconditionDrops   uint64 `json:"precondition_drops"`
}

// Processor drains the capture queue one job at a time.
type Processor struct {
	queue    *capture.Queue
	store    *records.Store
	svc      inference.Service
	archive  records.Archive
	creds    credential.Provider
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	poll     time.Duration
	observer func(from, to State)

	busy  atomic.Bool
	state atomic.Int32

	processed           atomic.Uint64
	committed           atomic.Uint64
	generationFailures  atomic.Uint64
	persistenceFailures atomic.Uint64
	preconditionDrops   atomic.Uint64
}

// NewProcessor creates a Processor.
func NewProcessor(d Deps) *Processor {
	p := &Processor{
		queue:    d.Queue,
		store:    d.Store,
		svc:      d.Inference,
		archive:  d.Archive,
		creds:    d.Credentials,
		notifier: d.Notifier,
		logger:   d.Logger,
		now:      d.Now,
		poll:     d.PollInterval,
		observer: d.Observer,
	}
	if p.notifier == nil {
		p.notifier = notify.Discard
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.poll <= 0 {
		p.poll = time.Second
	}
	return p
}

// Submit enqueues img without blocking and reports the capture.
func (p *Processor) Submit(img note.Image) capture.Job {
	job := p.queue.Enqueue(img)
	p.logger.Info("capture queued", "job_id", job.ID, "queue_length", p.queue.Len())

	n := notify.Info("Image captured!", "Processing your image...")
	n.JobID = job.ID
	p.notifier.Notify(n)
	return job
}

// Run processes jobs until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if did, _ := p.RunOnce(ctx); did {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-p.queue.Ready():
		case <-time.After(p.poll):
		}
	}
}

// RunOnce processes the head job, if any. It returns false without doing
// anything when the queue is empty or another job is in flight.
func (p *Processor) RunOnce(ctx context.Context) (bool, Outcome) {
	if !p.busy.CompareAndSwap(false, true) {
		return false, Outcome{}
	}
	defer p.busy.Store(false)

	if p.queue.Len() == 0 {
		return false, Outcome{}
	}

	cred, credErr := p.creds.Token(ctx)

	// The job is consumed here, before any processing, so it runs at most once.
	job, ok := p.queue.Dequeue()
	if !ok {
		return false, Outcome{}
	}

	var out Outcome
	if credErr != nil {
		out = Outcome{Kind: PreconditionFailure, JobID: job.ID, Err: credErr}
	} else {
		p.transition(StateDispatching)
		out = p.process(ctx, job, cred)
		p.transition(StateIdle)
	}

	p.record(out)
	p.report(out)
	return true, out
}

func (p *Processor) process(ctx context.Context, job capture.Job, cred string) Outcome {
	logger := p.logger.With("job_id", job.ID)

	p.transition(StateAwaitingInference)
	start := p.now()
	text, err := p.svc.Describe(ctx, job.Image, inference.DescribeInstruction)
	if err != nil {
		logger.Warn("inference failed", "error", err)
		return Outcome{Kind: GenerationFailure, JobID: job.ID, Err: err}
	}
	logger.Debug("inference finished", "elapsed", p.now().Sub(start))

	text = strings.TrimSpace(text)
	if text == "" {
		err := &inference.Error{Op: "describe", Kind: inference.ErrEmptyResponse}
		logger.Warn("inference returned no text", "error", err)
		return Outcome{Kind: GenerationFailure, JobID: job.ID, Err: err}
	}

	n := note.New(job.Image.DataURL(), text, p.now())

	p.transition(StateAwaitingPersistence)
	next, tok := p.store.Update(func(cur note.Sequence) note.Sequence {
		return cur.Prepend(n)
	})

	if err := p.archive.WriteAll(ctx, cred, next); err != nil {
		p.transition(StateRollingBack)
		overwrote := p.store.Rollback(tok)
		logger.Warn("archive write failed, note rolled back",
			"note_id", n.ID,
			"error", err,
			"overwrote_newer", overwrote,
		)
		return Outcome{
			Kind:      PersistenceFailure,
			JobID:     job.ID,
			Record:    RecordRolledBack,
			Note:      &n,
			Overwrote: overwrote,
			Err:       err,
		}
	}

	logger.Info("note committed", "note_id", n.ID, "notes", len(next))
	return Outcome{Kind: Committed, JobID: job.ID, Record: RecordCommitted, Note: &n}
}

func (p *Processor) transition(to State) {
	from := State(p.state.Swap(int32(to)))
	if p.observer != nil {
		p.observer(from, to)
	}
}

func (p *Processor) record(out Outcome) {
	p.processed.Add(1)
	switch out.Kind {
	case Committed:
		p.committed.Add(1)
	case GenerationFailure:
		p.generationFailures.Add(1)
	case PersistenceFailure:
		p.persistenceFailures.Add(1)
	case PreconditionFailure:
		p.preconditionDrops.Add(1)
	}
}

// report emits the single notification for a terminal outcome.
func (p *Processor) report(out Outcome) {
	var n notify.Notification
	switch out.Kind {
	case Committed:
		n = notify.Success("Note created!", out.Note.Text)
	case GenerationFailure:
		n = notify.Error("Processing failed", generationDetail(out.Err))
	case PersistenceFailure:
		n = notify.Error("Failed to save note", fmt.Sprintf(
			"A note was generated but could not be saved to the archive (%v). It has been removed and will not be retried.",
			archiveCause(out.Err)))
	case PreconditionFailure:
		n = notify.Error("Not signed in", "No credential is available. The capture was dropped.")
	}
	n.JobID = out.JobID
	p.notifier.Notify(n)
}

func generationDetail(err error) string {
	switch {
	case errors.Is(err, inference.ErrBlocked):
		return "The image was blocked by the content filter. No note was created."
	case errors.Is(err, inference.ErrEmptyResponse):
		return "The model returned no description. No note was created."
	case errors.Is(err, inference.ErrRejected):
		return "The inference service rejected the request. Check the API key and model settings. No note was created."
	case errors.Is(err, inference.ErrUnreachable):
		return "The inference service could not be reached. No note was created."
	}
	return fmt.Sprintf("Failed to process the image: %v", err)
}

func archiveCause(err error) string {
	for _, kind := range []error{archive.ErrUnauthorized, archive.ErrQuotaExceeded, archive.ErrUnreachable} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return err.Error()
}

// State returns the current state.
func (p *Processor) State() State {
	return State(p.state.Load())
}

// Stats returns counters and the current state.
func (p *Processor) Stats() Stats {
	return Stats{
		State:               p.State().String(),
		QueueLength:         p.queue.Len(),
		Processed:           p.processed.Load(),
		Committed:           p.committed.Load(),
		GenerationFailures:  p.generationFailures.Load(),
		PersistenceFailures: p.persistenceFailures.Load(),
		PreconditionDrops:   p.preconditionDrops.Load(),
	}
}

// Store returns the note store the processor writes to.
func (p *Processor) Store() *records.Store { return p.store }

// QueueLen returns the number of pending captures.
func (p *Processor) QueueLen() int { return p.queue.Len() }
