// Package notify delivers one-shot user-facing messages such as
// "report generated" or "model unavailable".
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a single user-facing message.
type Notification struct {
	Level       Level     `json:"level"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Time        time.Time `json:"time"`
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// Info, Success and Error build notifications stamped with the current time.
func Info(title, desc string) Notification    { return newNote(LevelInfo, title, desc) }
func Success(title, desc string) Notification { return newNote(LevelSuccess, title, desc) }
func Error(title, desc string) Notification   { return newNote(LevelError, title, desc) }

func newNote(l Level, title, desc string) Notification {
	return Notification{Level: l, Title: title, Description: desc, Time: time.Now()}
}

// Feed keeps the most recent notifications in memory for clients to poll.
type Feed struct {
	mu    sync.Mutex
	buf   []Notification
	next  int
	full  bool
	limit int
}

// NewFeed returns a feed holding at most capacity notifications.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = 100
	}
	return &Feed{buf: make([]Notification, capacity), limit: capacity}
}

func (f *Feed) Notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf[f.next] = n
	f.next = (f.next + 1) % f.limit
	if f.next == 0 {
		f.full = true
	}
}

// Recent returns up to limit notifications, newest first.
func (f *Feed) Recent(limit int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.next
	if f.full {
		count = f.limit
	}
	if limit <= 0 || limit > count {
		limit = count
	}
	out := make([]Notification, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (f.next - i + f.limit) % f.limit
		out = append(out, f.buf[idx])
	}
	return out
}

// Log writes notifications to a structured logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(n Notification) {
	lvl := slog.LevelInfo
	if n.Level == LevelError {
		lvl = slog.LevelWarn
	}
	attrs := []any{"kind", string(n.Level)}
	if n.Description != "" {
		attrs = append(attrs, "detail", n.Description)
	}
	l.logger.Log(context.Background(), lvl, n.Title, attrs...)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, x := range m {
		x.Notify(n)
	}
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Notification) {}
