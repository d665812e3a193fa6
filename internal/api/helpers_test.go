package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/visnote/internal/archive"
	"github.com/kalambet/visnote/internal/capture"
	"github.com/kalambet/visnote/internal/credential"
	"github.com/kalambet/visnote/internal/daysummary"
	"github.com/kalambet/visnote/internal/note"
	"github.com/kalambet/visnote/internal/notify"
	"github.com/kalambet/visnote/internal/pipeline"
	"github.com/kalambet/visnote/internal/records"
)

const (
	testToken        = "test-token"
	testArchiveToken = "archive-token"
	pngBase64        = "iVBORw0KGgo="
)

type mockInference struct {
	mu       sync.Mutex
	describe string
	summary  string
	err      error
	prompts  []string
}

func (m *mockInference) Describe(context.Context, note.Image, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.describe, m.err
}

func (m *mockInference) Summarize(_ context.Context, text, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, text)
	return m.summary, m.err
}

// failingBackend is an archive backend whose writes always fail.
type failingBackend struct{ *archive.Memory }

func (failingBackend) Put(context.Context, string, []byte) error {
	return errors.New("connection refused")
}

type testEnv struct {
	deps    Deps
	handler http.Handler
	infer   *mockInference
	archive *archive.Archive
	day     time.Time
}

func newTestEnv(t *testing.T, seed note.Sequence) *testEnv {
	return newTestEnvWithBackend(t, seed, archive.NewMemory())
}

func newTestEnvWithBackend(t *testing.T, seed note.Sequence, backend archive.Backend) *testEnv {
	t.Helper()

	arc := archive.New(backend, archive.Options{Authorizer: archive.NewTokenAuthorizer(testArchiveToken)})
	creds := credential.Static(testArchiveToken)
	feed := notify.NewFeed(0)
	store := records.NewStore(seed)
	infer := &mockInference{describe: "a red bicycle", summary: "# Day\n\nYou saw a **bicycle**."}

	proc := pipeline.NewProcessor(pipeline.Deps{
		Queue:       capture.NewQueue(),
		Store:       store,
		Inference:   infer,
		Archive:     arc,
		Credentials: creds,
		Notifier:    feed,
	})

	deps := Deps{
		Processor: proc,
		Ledger:    records.NewLedger(store, arc, creds, feed),
		Days:      daysummary.New(store, infer, time.UTC),
		Feed:      feed,
		Token:     testToken,
	}
	return &testEnv{
		deps:    deps,
		handler: NewHandler(deps),
		infer:   infer,
		archive: arc,
		day:     time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return v
}

func seedNotes(day time.Time) note.Sequence {
	return note.Sequence{
		{ID: "n3", Image: "data:image/png;base64," + pngBase64, Text: "coffee with Ana", CreatedAt: day.Add(2 * time.Hour)},
		{ID: "n2", Image: "data:image/png;base64," + pngBase64, Text: "whiteboard sketch", CreatedAt: day},
		{ID: "n1", Image: "data:image/png;base64," + pngBase64, Text: "train ticket", CreatedAt: day.AddDate(0, 0, -1)},
	}
}
