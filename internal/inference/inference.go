// Package inference describes images and summarizes text through a hosted or
// local model. Implementations make a single attempt per call and classify
// failures into ErrUnreachable, ErrRejected, ErrBlocked or ErrEmptyResponse.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/visnote/internal/note"
)

// Failure kinds. Use errors.Is against an error returned by a Service.
var (
	ErrUnreachable   = errors.New("inference service unreachable")
	ErrRejected      = errors.New("request rejected by inference service")
	ErrBlocked       = errors.New("content blocked")
	ErrEmptyResponse = errors.New("empty response")
)

// DescribeInstruction is the fixed instruction sent with every capture.
const DescribeInstruction = "Describe what you see in this image in a detailed but concise way, " +
	"as if you were taking a note. Focus on the main subject and key details of the environment."

// SummaryInstruction prefixes the notes of a day when asking for a synthesis.
const SummaryInstruction = "Based on the following notes, provide a concise and insightful " +
	"summary of the day's events and observations."

// Service is the inference backend used by the pipeline and the day view.
type Service interface {
	// Describe returns a natural-language description of img.
	Describe(ctx context.Context, img note.Image, instruction string) (string, error)
	// Summarize returns a synthesis of text following instruction.
	Summarize(ctx context.Context, text, instruction string) (string, error)
}

// Error describes a failed inference call.
type Error struct {
	Op   string // "describe" or "summarize"
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SummaryPrompt joins instruction and text into a single user prompt.
func SummaryPrompt(text, instruction string) string {
	return instruction + "\n\n" + text
}

// checkText trims a model reply and rejects it when nothing usable is left.
func checkText(op, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &Error{Op: op, Kind: ErrEmptyResponse}
	}
	return text, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
