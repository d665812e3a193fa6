package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/visnote/internal/archive"
	"github.com/kalambet/visnote/internal/daysummary"
	"github.com/kalambet/visnote/internal/note"
	"github.com/kalambet/visnote/internal/notify"
)

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("body = %q", got)
	}
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + testToken, http.StatusUnauthorized},
		{"valid", "Bearer " + testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/notes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestBearerAuth_EmptyConfiguredTokenDeniesAll(t *testing.T) {
	h := BearerAuth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestCapture_QueuesAndProcesses(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/captures", captureRequest{Image: "data:image/png;base64," + pngBase64})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody[captureResponse](t, w)
	if resp.JobID == "" || resp.QueueLength != 1 {
		t.Fatalf("response = %+v", resp)
	}

	did, out := env.deps.Processor.RunOnce(context.Background())
	if !did || out.Err != nil {
		t.Fatalf("RunOnce = %v, %+v", did, out)
	}

	notes := decodeBody[note.Sequence](t, env.do(t, http.MethodGet, "/notes", nil))
	if len(notes) != 1 || notes[0].Text != "a red bicycle" {
		t.Fatalf("notes = %+v", notes)
	}
	if notes[0].Image != "data:image/png;base64,"+pngBase64 {
		t.Errorf("image = %q", notes[0].Image)
	}
}

func TestCapture_InvalidImage(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, body := range []any{
		captureRequest{Image: ""},
		captureRequest{Image: "data:image/png,notbase64"},
		captureRequest{Image: "%%%"},
		`{"image": 12}`,
		`{"img": "x"}`,
	} {
		w := env.do(t, http.MethodPost, "/captures", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: status = %d, want 400", body, w.Code)
		}
	}
	if n := env.deps.Processor.QueueLen(); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestListNotes_DayFilterAndPaging(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Ledger.Store().ApplyOptimistic(seedNotes(env.day))

	notes := decodeBody[note.Sequence](t, env.do(t, http.MethodGet, "/notes?day=2024-03-10", nil))
	if len(notes) != 2 || notes[0].ID != "n3" || notes[1].ID != "n2" {
		t.Fatalf("day filter = %+v", notes)
	}

	notes = decodeBody[note.Sequence](t, env.do(t, http.MethodGet, "/notes?offset=1&limit=1", nil))
	if len(notes) != 1 || notes[0].ID != "n2" {
		t.Fatalf("paging = %+v", notes)
	}

	notes = decodeBody[note.Sequence](t, env.do(t, http.MethodGet, "/notes?offset=10", nil))
	if len(notes) != 0 {
		t.Fatalf("past end = %+v", notes)
	}

	if w := env.do(t, http.MethodGet, "/notes?day=10-03-2024", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad day status = %d, want 400", w.Code)
	}
}

func TestListNotes_WithoutImages(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Ledger.Store().ApplyOptimistic(seedNotes(env.day))

	w := env.do(t, http.MethodGet, "/notes?images=false", nil)
	if strings.Contains(w.Body.String(), "base64") {
		t.Errorf("image data leaked: %s", w.Body.String())
	}
	got := decodeBody[[]noteSummary](t, w)
	if len(got) != 3 || got[0].Text != "coffee with Ana" {
		t.Errorf("summaries = %+v", got)
	}
}

func TestGetNote(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Ledger.Store().ApplyOptimistic(seedNotes(env.day))

	got := decodeBody[note.Note](t, env.do(t, http.MethodGet, "/notes/n2", nil))
	if got.Text != "whiteboard sketch" {
		t.Errorf("note = %+v", got)
	}
	if w := env.do(t, http.MethodGet, "/notes/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Ledger.Store().ApplyOptimistic(seedNotes(env.day))

	w := env.do(t, http.MethodDelete, "/notes/n2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, ok := env.deps.Ledger.Store().Snapshot().Find("n2"); ok {
		t.Error("n2 still in store")
	}
	stored, err := env.archive.ReadAll(context.Background(), testArchiveToken)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("archived %d notes, want 2", len(stored))
	}

	if w := env.do(t, http.MethodDelete, "/notes/n2", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestDeleteNote_ArchiveFailureRollsBack(t *testing.T) {
	env := newTestEnvWithBackend(t, nil, failingBackend{archive.NewMemory()})
	env.deps.Ledger.Store().ApplyOptimistic(seedNotes(env.day))

	w := env.do(t, http.MethodDelete, "/notes/n2", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if _, ok := env.deps.Ledger.Store().Snapshot().Find("n2"); !ok {
		t.Error("n2 should be restored after failed save")
	}
}

func TestReplaceNotes(t *testing.T) {
	env := newTestEnv(t, nil)
	data, err := note.Encode(seedNotes(env.day))
	if err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPut, "/notes", string(data))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if n := env.deps.Ledger.Store().Len(); n != 3 {
		t.Errorf("store has %d notes, want 3", n)
	}

	for _, body := range []string{`{"id":"x"}`, `[{"id":"","text":"x"}]`, `[{"id":"a","text":"  "}]`} {
		if w := env.do(t, http.MethodPut, "/notes", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
	if n := env.deps.Ledger.Store().Len(); n != 3 {
		t.Errorf("rejected bodies changed the store: %d notes", n)
	}
}

func TestReplaceNotes_DuplicateIDs(t *testing.T) {
	env := newTestEnv(t, nil)
	seed := seedNotes(env.day)
	env.deps.Ledger.Store().ApplyOptimistic(seed)

	body := `[{"id":"dup","text":"first"},{"id":"dup","text":"second"}]`
	w := env.do(t, http.MethodPut, "/notes", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "duplicate") {
		t.Errorf("body = %s, want duplicate id reason", w.Body.String())
	}
	got := env.deps.Ledger.Store().Snapshot()
	if len(got) != len(seed) || got[0].ID != seed[0].ID {
		t.Errorf("store changed: %+v", got)
	}

	// The rejected list must not leave two rows that one delete cannot clear.
	if w := env.do(t, http.MethodDelete, "/notes/dup", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete dup: status = %d, want 404", w.Code)
	}
}

func TestSelectDay_AndSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Ledger.Store().ApplyOptimistic(seedNotes(env.day))

	w := env.do(t, http.MethodPost, "/days/select", selectDayRequest{Date: "2024-03-10"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	view := decodeBody[daysummary.View](t, w)
	if view.Day != "2024-03-10" || view.NoteCount != 2 {
		t.Errorf("view = %+v", view)
	}

	env.deps.Days.Wait()

	view = decodeBody[daysummary.View](t, env.do(t, http.MethodGet, "/days/summary", nil))
	if view.Status != daysummary.StatusReady || !strings.Contains(view.Summary, "bicycle") {
		t.Fatalf("view = %+v", view)
	}

	w = env.do(t, http.MethodGet, "/days/summary?format=html", nil)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<strong>bicycle</strong>") {
		t.Errorf("html = %s", w.Body.String())
	}
}

func TestSelectDay_EmptyDaySkipsInference(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Ledger.Store().ApplyOptimistic(seedNotes(env.day))

	view := decodeBody[daysummary.View](t, env.do(t, http.MethodPost, "/days/select", selectDayRequest{Date: "2024-01-01"}))
	if view.Status != daysummary.StatusEmpty {
		t.Errorf("status = %s, want empty", view.Status)
	}
	env.deps.Days.Wait()
	if len(env.infer.prompts) != 0 {
		t.Errorf("inference called %d times", len(env.infer.prompts))
	}

	if w := env.do(t, http.MethodGet, "/days/summary?format=html", nil); w.Code != http.StatusConflict {
		t.Errorf("html of empty day status = %d, want 409", w.Code)
	}
}

func TestSelectDay_InvalidDate(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.do(t, http.MethodPost, "/days/select", selectDayRequest{Date: "March 10"}); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/captures", captureRequest{Image: pngBase64})
	env.deps.Processor.RunOnce(context.Background())

	items := decodeBody[[]notify.Notification](t, env.do(t, http.MethodGet, "/notifications", nil))
	if len(items) != 2 {
		t.Fatalf("got %d notifications, want 2", len(items))
	}
	if items[0].Title != "Note created!" || items[1].Title != "Image captured!" {
		t.Errorf("titles = %q, %q", items[0].Title, items[1].Title)
	}

	items = decodeBody[[]notify.Notification](t, env.do(t, http.MethodGet, "/notifications?limit=1", nil))
	if len(items) != 1 {
		t.Errorf("limit=1 returned %d", len(items))
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Ledger.Store().ApplyOptimistic(seedNotes(env.day))
	env.do(t, http.MethodPost, "/captures", captureRequest{Image: pngBase64})

	got := decodeBody[statusResponse](t, env.do(t, http.MethodGet, "/status", nil))
	if got.Notes != 3 || got.Pipeline.QueueLength != 1 || got.Day.Status != daysummary.StatusNone {
		t.Errorf("status = %+v", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := renderMarkdown("- one\n- two")
	if !strings.Contains(got, "<li>one</li>") {
		t.Errorf("renderMarkdown = %q", got)
	}
}
