package pipeline

import (
	"fmt"

	"github.com/kalambet/visnote/internal/note"
)

// State is the processor's position in the capture state machine.
type State int32

const (
	StateIdle State = iota
	StateDispatching
	StateAwaitingInference
	StateAwaitingPersistence
	StateRollingBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingInference:
		return "awaiting_inference"
	case StateAwaitingPersistence:
		return "awaiting_persistence"
	case StateRollingBack:
		return "rolling_back"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Kind classifies the terminal outcome of one capture job.
type Kind int

const (
	// Committed: the note was generated and persisted.
	Committed Kind = iota + 1
	// GenerationFailure: inference failed; the note list was not touched.
	GenerationFailure
	// PersistenceFailure: the note was generated but the archive write
	// failed; the optimistic update was rolled back.
	PersistenceFailure
	// PreconditionFailure: no credential; the job was dropped unprocessed.
	PreconditionFailure
)

func (k Kind) String() string {
	switch k {
	case Committed:
		return "committed"
	case GenerationFailure:
		return "generation_failure"
	case PersistenceFailure:
		return "persistence_failure"
	case PreconditionFailure:
		return "precondition_failure"
	}
	return "unknown"
}

// RecordState says what became of the generated note.
type RecordState int

const (
	RecordNone       RecordState = iota // no note was applied
	RecordCommitted                     // visible and persisted
	RecordRolledBack                    // applied, then removed after a failed write
)

// Outcome is the result of processing one job.
type Outcome struct {
	Kind   Kind
	JobID  string
	Record RecordState
	// Note is set when inference produced a note, even if it was rolled back.
	Note *note.Note
	// Overwrote reports that the rollback replaced a mutation made after the
	// optimistic update.
	Overwrote bool
	Err       error
}
