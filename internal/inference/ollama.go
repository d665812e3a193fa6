package inference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/kalambet/visnote/internal/note"
	"github.com/kalambet/visnote/internal/ollama"
)

// Ollama runs inference against a local Ollama server, using a vision model
// for captures and a text model for summaries.
type Ollama struct {
	client      *ollama.Client
	visionModel string
	textModel   string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewOllama creates an Ollama-backed Service. timeout bounds each call; 0
// leaves it to the caller's context.
func NewOllama(client *ollama.Client, visionModel, textModel string, timeout time.Duration) *Ollama {
	return &Ollama{
		client:      client,
		visionModel: visionModel,
		textModel:   textModel,
		timeout:     timeout,
		logger:      slog.Default(),
	}
}

// EnsureReady pulls any missing model and warms the vision model.
func (o *Ollama) EnsureReady(ctx context.Context, w io.Writer) error {
	return ollama.EnsureReady(ctx, o.client, w, o.visionModel, o.textModel)
}

func (o *Ollama) Describe(ctx context.Context, img note.Image, instruction string) (string, error) {
	return o.chat(ctx, "describe", o.visionModel, ollama.Message{
		Role:    "user",
		Content: instruction,
		Images:  []string{img.Base64},
	})
}

func (o *Ollama) Summarize(ctx context.Context, text, instruction string) (string, error) {
	return o.chat(ctx, "summarize", o.textModel, ollama.Message{
		Role:    "user",
		Content: SummaryPrompt(text, instruction),
	})
}

func (o *Ollama) chat(ctx context.Context, op, model string, msg ollama.Message) (string, error) {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	res, err := o.client.Chat(ctx, model, []ollama.Message{msg})
	if err != nil {
		return "", o.classify(op, err)
	}
	o.logger.Debug("ollama call finished", "op", op, "model", model, "elapsed", time.Since(start))

	if res.DoneReason == "content_filter" {
		return "", &Error{Op: op, Kind: ErrBlocked}
	}
	return checkText(op, res.Content)
}

func (o *Ollama) classify(op string, err error) error {
	var se *ollama.StatusError
	if errors.As(err, &se) && se.Status == 403 {
		return &Error{Op: op, Kind: ErrBlocked, Err: err}
	}
	return &Error{Op: op, Kind: ErrUnreachable, Err: err}
}
