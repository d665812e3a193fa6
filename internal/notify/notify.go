// Package notify delivers user-facing notifications (the toast channel).
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Level classifies a notification for display.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one message for the user.
type Notification struct {
	ID     uint64    `json:"id"`
	Level  Level     `json:"level"`
	Title  string    `json:"title"`
	Detail string    `json:"detail"`
	JobID  string    `json:"job_id,omitempty"`
	At     time.Time `json:"at"`
}

// Info builds an informational notification.
func Info(title, detail string) Notification {
	return Notification{Level: LevelInfo, Title: title, Detail: detail}
}

// Success builds a success notification.
func Success(title, detail string) Notification {
	return Notification{Level: LevelSuccess, Title: title, Detail: detail}
}

// Error builds an error notification.
func Error(title, detail string) Notification {
	return Notification{Level: LevelError, Title: title, Detail: detail}
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, x := range m {
		x.Notify(n)
	}
}

// Log writes notifications to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"title", n.Title, "detail", n.Detail}
	if n.JobID != "" {
		attrs = append(attrs, "job_id", n.JobID)
	}
	if n.Level == LevelError {
		logger.Warn("notification", attrs...)
		return
	}
	logger.Info("notification", attrs...)
}

// Feed keeps the most recent notifications in memory for polling clients.
type Feed struct {
	mu     sync.Mutex
	items  []Notification
	limit  int
	nextID uint64
	now    func() time.Time
}

// NewFeed creates a Feed retaining at most limit notifications (default 100).
func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 100
	}
	return &Feed{limit: limit, now: time.Now}
}

// Notify stores n, assigning it an ID and timestamp.
func (f *Feed) Notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	if n.At.IsZero() {
		n.At = f.now()
	}
	f.items = append(f.items, n)
	if over := len(f.items) - f.limit; over > 0 {
		f.items = append([]Notification(nil), f.items[over:]...)
	}
}

// Recent returns up to limit notifications, newest first. limit <= 0 returns all.
func (f *Feed) Recent(limit int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.items)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Notification, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, f.items[i])
	}
	return out
}
