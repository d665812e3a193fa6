// Package api exposes the capture pipeline, the note list and the day view
// over a local HTTP API and an MCP server.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/visnote/internal/archive"
	"github.com/kalambet/visnote/internal/credential"
	"github.com/kalambet/visnote/internal/daysummary"
	"github.com/kalambet/visnote/internal/note"
	"github.com/kalambet/visnote/internal/notify"
	"github.com/kalambet/visnote/internal/pipeline"
	"github.com/kalambet/visnote/internal/records"
)

const (
	maxCaptureBodySize = 20 << 20 // 20MB, one image as base64
	maxNotesBodySize   = 64 << 20 // 64MB, a full note list with images
	maxRequestBodySize = 1 << 20
)

// Deps holds everything the HTTP and MCP surfaces call into.
type Deps struct {
	Processor *pipeline.Processor
	Ledger    *records.Ledger
	Days      *daysummary.Aggregator
	Feed      *notify.Feed
	Token     string
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewHandler returns the HTTP API. /health is open; everything else requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/status", handleStatus(deps))
		r.Post("/captures", handleCapture(deps))
		r.Get("/notes", handleListNotes(deps))
		r.Put("/notes", handleReplaceNotes(deps))
		r.Get("/notes/{id}", handleGetNote(deps))
		r.Delete("/notes/{id}", handleDeleteNote(deps))
		r.Post("/days/select", handleSelectDay(deps))
		r.Get("/days/summary", handleDaySummary(deps))
		r.Get("/notifications", handleNotifications(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type statusResponse struct {
	Pipeline pipeline.Stats  `json:"pipeline"`
	Notes    int             `json:"notes"`
	Day      daysummary.View `json:"day"`
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			Pipeline: deps.Processor.Stats(),
			Notes:    deps.Ledger.Store().Len(),
			Day:      deps.Days.View(),
		})
	}
}

type captureRequest struct {
	Image string `json:"image"`
}

type captureResponse struct {
	JobID       string `json:"job_id"`
	QueueLength int    `json:"queue_length"`
}

func handleCapture(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxCaptureBodySize)
		defer r.Body.Close()

		var req captureRequest
		if err := decodeJSON(r.Body, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		img, err := note.ParseImage(req.Image)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "image must be a base64 data URL or base64 string")
			return
		}

		job := deps.Processor.Submit(img)
		writeJSON(w, http.StatusAccepted, captureResponse{
			JobID:       job.ID,
			QueueLength: deps.Processor.QueueLen(),
		})
	}
}

// noteSummary is a note without its image payload.
type noteSummary struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

func handleListNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notes := deps.Ledger.Store().Snapshot()

		if day := r.URL.Query().Get("day"); day != "" {
			d, err := deps.Days.ParseDay(day)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "day must be YYYY-MM-DD")
				return
			}
			notes = notes.OnDay(d, deps.Days.Location())
		}

		offset := parseIntParam(r, "offset", 0, 0)
		limit := parseIntParam(r, "limit", 0, 0)
		notes = page(notes, offset, limit)

		if r.URL.Query().Get("images") == "false" {
			out := make([]noteSummary, len(notes))
			for i, n := range notes {
				out[i] = noteSummary{ID: n.ID, Text: n.Text, CreatedAt: n.CreatedAt.Format(time.RFC3339)}
			}
			writeJSON(w, http.StatusOK, out)
			return
		}
		if notes == nil {
			notes = note.Sequence{}
		}
		writeJSON(w, http.StatusOK, notes)
	}
}

func page(s note.Sequence, offset, limit int) note.Sequence {
	if offset >= len(s) {
		return note.Sequence{}
	}
	s = s[offset:]
	if limit > 0 && limit < len(s) {
		s = s[:limit]
	}
	return s
}

func handleGetNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := deps.Ledger.Store().Snapshot().Find(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func handleDeleteNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Ledger.Remove(r.Context(), id)
		if errors.Is(err, records.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			deps.logger().Warn("delete note failed", "id", id, "error", err)
			writeLedgerError(w, "failed to delete note", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleReplaceNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxNotesBodySize)
		defer r.Body.Close()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}
		seq, err := note.Decode(data)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "body must be a JSON array of notes")
			return
		}
		err = deps.Ledger.ReplaceAll(r.Context(), seq)
		if errors.Is(err, records.ErrInvalidSequence) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			deps.logger().Warn("replace notes failed", "count", len(seq), "error", err)
			writeLedgerError(w, "failed to save notes", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "saved", "count": len(seq)})
	}
}

// writeLedgerError maps a failed persist to an HTTP status. The in-memory
// list has already been rolled back when this is called.
func writeLedgerError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, credential.ErrMissing), errors.Is(err, archive.ErrUnauthorized):
		httpError(w, http.StatusForbidden, "archive_error", "%s: %v", msg, err)
	case errors.Is(err, archive.ErrQuotaExceeded):
		httpError(w, http.StatusInsufficientStorage, "archive_error", "%s: %v", msg, err)
	default:
		httpError(w, http.StatusBadGateway, "archive_error", "%s: %v", msg, err)
	}
}

type selectDayRequest struct {
	Date string `json:"date"`
}

func handleSelectDay(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req selectDayRequest
		if err := decodeJSON(r.Body, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		day, err := deps.Days.ParseDay(req.Date)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "date must be YYYY-MM-DD")
			return
		}

		deps.Days.Select(r.Context(), day)
		writeJSON(w, http.StatusAccepted, deps.Days.View())
	}
}

func handleDaySummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := deps.Days.View()
		if r.URL.Query().Get("format") != "html" {
			writeJSON(w, http.StatusOK, view)
			return
		}
		if view.Status != daysummary.StatusReady {
			httpError(w, http.StatusConflict, "not_ready", "summary not available (status %s)", view.Status)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, renderMarkdown(view.Summary))
	}
}

func handleNotifications(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		items := deps.Feed.Recent(limit)
		if items == nil {
			items = []notify.Notification{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}
