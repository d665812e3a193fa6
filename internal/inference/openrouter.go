package inference

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kalambet/visnote/internal/note"
	"github.com/kalambet/visnote/internal/proxy"
)

// OpenRouter runs inference through the OpenRouter chat completion API.
type OpenRouter struct {
	client      *proxy.Client
	visionModel string
	textModel   string
	timeout     time.Duration
}

// NewOpenRouter creates an OpenRouter-backed Service.
func NewOpenRouter(client *proxy.Client, visionModel, textModel string, timeout time.Duration) *OpenRouter {
	return &OpenRouter{
		client:      client,
		visionModel: visionModel,
		textModel:   textModel,
		timeout:     timeout,
	}
}

func (r *OpenRouter) Describe(ctx context.Context, img note.Image, instruction string) (string, error) {
	return r.complete(ctx, "describe", proxy.ChatRequest{
		Model: r.visionModel,
		Messages: []proxy.Message{{
			Role:    "user",
			Content: []proxy.ContentPart{proxy.TextPart(instruction), proxy.ImagePart(img.DataURL())},
		}},
	})
}

func (r *OpenRouter) Summarize(ctx context.Context, text, instruction string) (string, error) {
	return r.complete(ctx, "summarize", proxy.ChatRequest{
		Model: r.textModel,
		Messages: []proxy.Message{{
			Role:    "user",
			Content: []proxy.ContentPart{proxy.TextPart(SummaryPrompt(text, instruction))},
		}},
	})
}

func (r *OpenRouter) complete(ctx context.Context, op string, req proxy.ChatRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Chat(ctx, req)
	if err != nil {
		var se *proxy.StatusError
		if errors.As(err, &se) {
			return "", &Error{Op: op, Kind: statusKind(se.Status), Err: err}
		}
		return "", &Error{Op: op, Kind: ErrUnreachable, Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Op: op, Kind: ErrEmptyResponse}
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &Error{Op: op, Kind: ErrBlocked}
	}
	return checkText(op, choice.Message.Text())
}

// statusKind maps an OpenRouter error status to a failure kind. Client errors
// other than timeouts and rate limits will not succeed on retry.
func statusKind(status int) error {
	switch {
	case status == http.StatusForbidden:
		// OpenRouter answers 403 when input moderation flags the request.
		return ErrBlocked
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return ErrUnreachable
	case status >= 400 && status < 500:
		return ErrRejected
	}
	return ErrUnreachable
}
