// Package notify delivers user-visible, non-blocking notices ("Location
// Detected", "Using Default Location", "Emergency Activated", ...).
//
// Notices are fire-and-forget: a sink failing to deliver never blocks or
// fails the pipeline that raised it.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level is the visual weight of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelUrgent  Level = "urgent"
)

// Notice titles raised by the core pipeline.
const (
	TitleLocationDetected     = "Location Detected"
	TitleHighAccuracy         = "High Accuracy Location"
	TitleLocationIssue        = "Location Issue"
	TitleUsingDefaultLocation = "Using Default Location"
	TitleRefreshFailed        = "Refresh Failed"
	TitleEmergencyActivated   = "Emergency Activated"
	TitleThreatDetected       = "Threat Detected"
	TitleEmergencyCall        = "Emergency Call"
	TitleContactsNotified     = "Contacts Notified"
	TitleEmergencyAlert       = "Emergency Alert"
)

// Notice is a toast-style message for the user.
type Notice struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Level Level             `json:"level"`
	Data  map[string]string `json:"data,omitempty"`
	At    time.Time         `json:"at"`
}

// Notifier is a notice sink.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notice) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }

// New builds a notice stamped with the current time.
func New(level Level, title, body string) Notice {
	return Notice{Title: title, Body: body, Level: level, At: time.Now()}
}

// Send delivers n to sink, logging instead of returning failures.
// A nil sink is allowed.
func Send(ctx context.Context, sink Notifier, logger *slog.Logger, n Notice) {
	if sink == nil {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	if err := sink.Notify(ctx, n); err != nil && logger != nil {
		logger.Warn("notice delivery failed", "title", n.Title, "error", err)
	}
}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log sink. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs the notice.
func (l *LogNotifier) Notify(_ context.Context, n Notice) error {
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning, LevelError:
		level = slog.LevelWarn
	case LevelUrgent:
		level = slog.LevelError
	}
	l.logger.Log(context.Background(), level, "notice", "title", n.Title, "body", n.Body)
	return nil
}

// Multi fans a notice out to several sinks. All sinks are tried; the first
// error is returned.
type Multi []Notifier

// Notify delivers to every sink.
func (m Multi) Notify(ctx context.Context, n Notice) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps every notice in memory. Used by the dashboard history and
// by tests.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
	limit   int
	onAdd   func(Notice)
}

// NewRecorder keeps at most limit notices (0 = unlimited).
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// OnAdd registers a callback run after each recorded notice.
func (r *Recorder) OnAdd(fn func(Notice)) {
	r.mu.Lock()
	r.onAdd = fn
	r.mu.Unlock()
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notice) error {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	if r.limit > 0 && len(r.notices) > r.limit {
		r.notices = r.notices[len(r.notices)-r.limit:]
	}
	cb := r.onAdd
	r.mu.Unlock()

	if cb != nil {
		cb(n)
	}
	return nil
}

// All returns a copy of the recorded notices, oldest first.
func (r *Recorder) All() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Count returns how many recorded notices carry the given title.
func (r *Recorder) Count(title string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Title == title {
			n++
		}
	}
	return n
}

// Reset drops all recorded notices.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notices = nil
	r.mu.Unlock()
}
