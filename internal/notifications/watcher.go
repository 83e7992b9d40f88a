package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
	"github.com/thatsimonsguy/greenhouse/internal/state"
)

const (
	priorityDefault = 3
	priorityHigh    = 4
	priorityUrgent  = 5
)

type message struct {
	title    string
	body     string
	priority int
}

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, title, message string, priority int) error
}

// Watcher turns snapshots into notifications: health getting worse and
// every new notice. Observe is safe to use as a coordinator subscriber.
type Watcher struct {
	sender  Sender
	pending chan state.Snapshot

	// Owned by Run.
	health rules.HealthSeverity
	seen   map[string]bool
	primed bool
}

func NewWatcher(sender Sender) *Watcher {
	return &Watcher{
		sender:  sender,
		pending: make(chan state.Snapshot, 16),
		health:  rules.HealthOptimal,
		seen:    make(map[string]bool),
	}
}

// Observe queues snap without blocking. When the queue is full the
// snapshot is dropped; a later one carries the same information.
func (w *Watcher) Observe(snap state.Snapshot) {
	select {
	case w.pending <- snap:
	default:
		log.Debug().Uint64("version", snap.Version).Msg("Notification queue full, dropping snapshot")
	}
}

func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.pending:
			for _, m := range w.diff(snap) {
				if err := w.sender.Send(ctx, m.title, m.body, m.priority); err != nil {
					log.Warn().Err(err).Str("title", m.title).Msg("Failed to send notification")
				}
			}
		}
	}
}

// diff returns the notifications snap warrants compared to what has been
// seen so far. The first snapshot only records the notices already open.
func (w *Watcher) diff(snap state.Snapshot) []message {
	var out []message

	sev := snap.Health.Severity
	if sev == "" {
		sev = rules.HealthOptimal
	}
	if sev.Level() > w.health.Level() {
		p := priorityHigh
		if sev == rules.HealthCritical {
			p = priorityUrgent
		}
		out = append(out, message{
			title:    fmt.Sprintf("Greenhouse %s", snap.Health.Label),
			body:     healthBody(snap),
			priority: p,
		})
	}
	w.health = sev

	current := make(map[string]bool, len(snap.Notices))
	for _, n := range snap.Notices {
		current[n.ID] = true
		if w.seen[n.ID] || !w.primed {
			continue
		}
		out = append(out, message{
			title:    noticeTitle(n.Kind),
			body:     n.Message,
			priority: priorityDefault,
		})
	}
	w.seen = current
	w.primed = true

	return out
}

func healthBody(snap state.Snapshot) string {
	var parts []string
	for _, s := range snap.Sensors {
		if s.Status != model.StatusNormal {
			parts = append(parts, fmt.Sprintf("%s %.1f%s (%s)", s.Name, s.Value, s.Unit, s.Status))
		}
	}
	for _, d := range snap.Devices {
		if d.Status == model.DeviceOffline {
			parts = append(parts, fmt.Sprintf("%s offline", d.Name))
		}
	}
	if len(parts) == 0 {
		return "System health changed"
	}
	return strings.Join(parts, ", ")
}

func noticeTitle(kind state.NoticeKind) string {
	switch kind {
	case state.NoticeCommandFailed:
		return "Greenhouse command failed"
	case state.NoticeNotFound:
		return "Greenhouse item not found"
	default:
		return "Greenhouse data unavailable"
	}
}
