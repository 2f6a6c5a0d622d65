// Package notify delivers fire-and-forget engine events. Notifiers never
// block the caller and never report delivery failures back to it.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"fairlaunch/internal/domain"
)

// Notifier receives engine events.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event)
}

// NewEvent builds an event with a fresh id.
func NewEvent(typ domain.EventType, tokenID, userID string, at time.Time, payload any) domain.Event {
	return domain.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		TokenID:   tokenID,
		UserID:    userID,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, domain.Event) {}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev domain.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

// LogNotifier writes one line per event.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a log notifier. A nil logger uses log.Default().
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(_ context.Context, ev domain.Event) {
	if ev.UserID != "" {
		l.logger.Printf("[notify] %s token=%s user=%s id=%s", ev.Type, ev.TokenID, ev.UserID, ev.ID)
		return
	}
	l.logger.Printf("[notify] %s token=%s id=%s", ev.Type, ev.TokenID, ev.ID)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given type were recorded.
func (r *Recorder) Count(typ domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
