// Package activity maintains the portal's audit trail.
package activity

import (
	"strings"
	"time"

	"compliance/api/internal/store"
	"compliance/api/internal/util"
)

type Clock func() time.Time

// Logger builds audit entries. It holds no state of its own; entries are
// written into the store.State passed to Record.
type Logger struct {
	now Clock
}

func NewLogger(now Clock) *Logger {
	if now == nil {
		now = time.Now
	}
	return &Logger{now: now}
}

// Record prepends a new entry and drops everything past store.MaxActivity.
// It never fails.
func (l *Logger) Record(state *store.State, actor store.User, action store.ActivityType, description string) store.ActivityLog {
	entry := store.ActivityLog{
		ID:          util.NewID("act"),
		UserID:      actor.ID,
		UserName:    actor.Name,
		Department:  actor.Department,
		Action:      action,
		Description: description,
		Timestamp:   l.now().UTC().Format(time.RFC3339),
	}
	state.Activity = Prepend(state.Activity, entry)
	return entry
}

func Prepend(entries []store.ActivityLog, entry store.ActivityLog) []store.ActivityLog {
	size := len(entries) + 1
	if size > store.MaxActivity {
		size = store.MaxActivity
	}
	out := make([]store.ActivityLog, size)
	out[0] = entry
	copy(out[1:], entries)
	return out
}

// Filter keeps entries whose user name, description or action contains
// query, ignoring case. An empty query keeps everything.
func Filter(entries []store.ActivityLog, query string) []store.ActivityLog {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]store.ActivityLog, 0, len(entries))
	for _, entry := range entries {
		if needle == "" ||
			strings.Contains(strings.ToLower(entry.UserName), needle) ||
			strings.Contains(strings.ToLower(entry.Description), needle) ||
			strings.Contains(strings.ToLower(string(entry.Action)), needle) {
			out = append(out, entry)
		}
	}
	return out
}
