// Package syncer drives cloud synchronization: it turns push
// notifications, local edits and periodic ticks into debounced,
// single-flight sync passes and exposes a diagnostics snapshot.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/cradlekeeper/internal/cloudx"
	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
)

const (
	// DefaultDebounce is how long the syncer waits after a trigger for
	// further triggers to coalesce before starting a pass.
	DefaultDebounce = 2 * time.Second

	// dedupeWindow bounds how long a push notification ID is remembered.
	// The backend redelivers within seconds; anything older is a new
	// notification even if the ID collides.
	dedupeWindow = 10 * time.Minute
)

// SubscriptionStatus describes the push-subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionUnknown SubscriptionStatus = "unknown"
	SubscriptionPending SubscriptionStatus = "pending"
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionFailed  SubscriptionStatus = "failed"
)

// Diagnostics is a point-in-time snapshot of sync health for the
// settings screen and bug reports.
type Diagnostics struct {
	Subscription SubscriptionStatus
	LastPush     time.Time
	// LastSync is when the last successful pass completed; failed
	// passes leave it untouched.
	LastSync     time.Time
	LastError    string
	PendingCount int
}

// Engine is the sync work the syncer schedules. *share.Coordinator
// satisfies it.
type Engine interface {
	SyncAll(ctx context.Context) error
	PendingCount(ctx context.Context) int
}

// Subscriber registers push subscriptions. *cloudx.ControlClient
// satisfies it.
type Subscriber interface {
	RegisterSubscription(ctx context.Context, subscriptionID, scope string) error
}

// Syncer serializes sync passes. Triggers arriving before a pass starts
// coalesce into one; triggers arriving while a pass runs are dropped.
type Syncer struct {
	engine   Engine
	control  Subscriber
	logger   logging.Logger
	debounce time.Duration

	trigger chan struct{}

	mu       sync.Mutex
	inFlight bool
	subState SubscriptionStatus
	lastPush time.Time
	lastSync time.Time
	lastErr  string
	seen     map[string]time.Time
}

// New returns a Syncer; call Run to start it.
func New(engine Engine, control Subscriber, logger logging.Logger, debounce time.Duration) *Syncer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Syncer{
		engine:   engine,
		control:  control,
		logger:   logger,
		debounce: debounce,
		trigger:  make(chan struct{}, 1),
		subState: SubscriptionUnknown,
		seen:     map[string]time.Time{},
	}
}

// RequestSync asks for a sync pass. It never blocks; a request while
// one is already queued is absorbed.
func (s *Syncer) RequestSync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// HandleNotification feeds a push notification in. Redelivered
// notifications (same ID within the dedupe window) are dropped.
func (s *Syncer) HandleNotification(n cloudx.Notification) {
	s.mu.Lock()
	now := time.Now()
	if n.NotificationID != "" {
		if seenAt, ok := s.seen[n.NotificationID]; ok && now.Sub(seenAt) < dedupeWindow {
			s.mu.Unlock()
			return
		}
		s.seen[n.NotificationID] = now
		s.purgeSeenLocked(now)
	}
	s.lastPush = now
	s.mu.Unlock()

	s.RequestSync()
}

// purgeSeenLocked drops dedupe entries older than the window so the map
// stays bounded. Caller holds s.mu.
func (s *Syncer) purgeSeenLocked(now time.Time) {
	for id, at := range s.seen {
		if now.Sub(at) >= dedupeWindow {
			delete(s.seen, id)
		}
	}
}

// Run registers push subscriptions and then serves sync triggers until
// ctx is cancelled. It is the only goroutine that executes passes, so
// two passes can never overlap.
func (s *Syncer) Run(ctx context.Context) {
	s.registerSubscriptions(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		}

		// Debounce: let a burst of triggers settle into one pass.
		timer := time.NewTimer(s.debounce)
	settle:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.trigger:
			case <-timer.C:
				break settle
			}
		}

		s.runPass(ctx)
	}
}

// SyncNow runs one pass immediately, bypassing the debounce. It returns
// ErrSyncInFlight when Run's loop (or another SyncNow) is mid-pass.
func (s *Syncer) SyncNow(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return common.ErrSyncInFlight
	}
	s.inFlight = true
	s.mu.Unlock()

	return s.finishPass(ctx)
}

func (s *Syncer) runPass(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		// A manual SyncNow is mid-pass; the overlapping trigger is dropped.
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	if err := s.finishPass(ctx); err != nil {
		s.logger.Warn(ctx, "sync pass failed", "error", err)
	}
}

func (s *Syncer) finishPass(ctx context.Context) error {
	err := s.engine.SyncAll(ctx)

	// A trigger that arrived while the pass ran overlaps it and is
	// dropped, not queued as a follow-up pass.
	select {
	case <-s.trigger:
	default:
	}

	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastSync = time.Now()
		s.lastErr = ""
	}
	s.mu.Unlock()

	return err
}

func (s *Syncer) registerSubscriptions(ctx context.Context) {
	s.setSubscription(SubscriptionPending)

	for _, sub := range []struct {
		id    string
		scope string
	}{
		{common.PrivateSubscriptionID, common.ScopePrivate},
		{common.SharedSubscriptionID, common.ScopeShared},
	} {
		if err := s.control.RegisterSubscription(ctx, sub.id, sub.scope); err != nil {
			s.logger.Warn(ctx, "failed to register push subscription",
				"subscription_id", sub.id, "error", err)
			s.setSubscription(SubscriptionFailed)
			return
		}
	}
	s.setSubscription(SubscriptionActive)
}

func (s *Syncer) setSubscription(state SubscriptionStatus) {
	s.mu.Lock()
	s.subState = state
	s.mu.Unlock()
}

// Diagnostics returns the current sync-health snapshot.
func (s *Syncer) Diagnostics(ctx context.Context) Diagnostics {
	pending := s.engine.PendingCount(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	return Diagnostics{
		Subscription: s.subState,
		LastPush:     s.lastPush,
		LastSync:     s.lastSync,
		LastError:    s.lastErr,
		PendingCount: pending,
	}
}
