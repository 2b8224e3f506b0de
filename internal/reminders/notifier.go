// Package reminders computes local-notification schedules from the
// merged profile and action state: monthly age milestones and
// per-category interval reminders.
package reminders

import (
	"context"
	"time"
)

// Notification is one scheduled local notification.
type Notification struct {
	ID     string
	FireAt time.Time
	Title  string
	Body   string
}

// Notifier is the platform notification capability. The scheduler
// diffs its computed set against Scheduled() to avoid rescheduling
// notifications that have not changed.
type Notifier interface {
	// EnsureAuthorization prompts for (or checks) notification
	// permission and reports whether scheduling is allowed.
	EnsureAuthorization(ctx context.Context) (bool, error)

	// Scheduled returns the currently pending notifications.
	Scheduled(ctx context.Context) ([]Notification, error)

	// Schedule registers one notification.
	Schedule(ctx context.Context, n Notification) error

	// Cancel removes the notifications with the given IDs. Unknown IDs
	// are ignored.
	Cancel(ctx context.Context, ids []string) error
}
