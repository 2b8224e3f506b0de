package reminders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/services"
)

const (
	// MilestoneWindow is how far ahead monthly age milestones are
	// scheduled.
	MilestoneWindow = 6 * 30 * 24 * time.Hour

	// SafetyMinimum is the earliest a category reminder may fire when a
	// profile has no history in that category yet.
	SafetyMinimum = 15 * time.Minute

	// maxAdvanceIterations bounds the advance-past-now loop for very
	// short intervals against long elapsed gaps.
	maxAdvanceIterations = 1000

	// MaxScheduled caps the total pending notifications; the platform
	// enforces a similar limit. Earliest-firing ones are kept.
	MaxScheduled = 64
)

// Scheduler recomputes the notification set from current state. It is
// a downstream consumer of the merge core: call Recompute after any
// sync or local mutation settles.
type Scheduler struct {
	profiles *services.ProfileService
	actions  *services.ActionService
	notifier Notifier
	logger   logging.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewScheduler(profiles *services.ProfileService, actions *services.ActionService, notifier Notifier, logger logging.Logger) *Scheduler {
	return &Scheduler{
		profiles: profiles,
		actions:  actions,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Recompute rebuilds the scheduled-notification set: compute the
// desired set, drop stale scheduled ones, register new ones, and leave
// exact matches untouched.
func (s *Scheduler) Recompute(ctx context.Context) error {
	ok, err := s.notifier.EnsureAuthorization(ctx)
	if err != nil {
		return fmt.Errorf("failed to check notification authorization: %w", err)
	}
	if !ok {
		s.logger.Info(ctx, "notifications not authorized, skipping reminder scheduling")
		return nil
	}

	desired, err := s.computeDesired(ctx)
	if err != nil {
		return err
	}

	existing, err := s.notifier.Scheduled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list scheduled notifications: %w", err)
	}

	existingByID := map[string]Notification{}
	for _, n := range existing {
		existingByID[n.ID] = n
	}
	desiredByID := map[string]Notification{}
	for _, n := range desired {
		desiredByID[n.ID] = n
	}

	var stale []string
	for id := range existingByID {
		if _, keep := desiredByID[id]; !keep {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := s.notifier.Cancel(ctx, stale); err != nil {
			return fmt.Errorf("failed to cancel stale notifications: %w", err)
		}
	}

	for _, n := range desired {
		if prev, ok := existingByID[n.ID]; ok && prev.FireAt.Equal(n.FireAt) && prev.Title == n.Title && prev.Body == n.Body {
			// Identical content and fire time: leave it alone.
			continue
		}
		if err := s.notifier.Schedule(ctx, n); err != nil {
			return fmt.Errorf("failed to schedule notification %s: %w", n.ID, err)
		}
	}
	return nil
}

// computeDesired builds the full desired set across all profiles,
// capped to MaxScheduled keeping the earliest-firing entries.
func (s *Scheduler) computeDesired(ctx context.Context) ([]Notification, error) {
	profiles, err := s.profiles.Profiles(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var out []Notification

	// Milestones dedup by exact fire date across profiles: several
	// children hitting a birthday-month on the same day share one
	// combined notification, firing at the earliest time due that day.
	type milestoneGroup struct {
		fireAt time.Time
		names  []string
	}
	milestones := map[string]*milestoneGroup{}

	for _, p := range profiles {
		if !p.RemindersEnabled {
			continue
		}

		for _, fireAt := range monthlyMilestones(p.BirthDate, now, MilestoneWindow) {
			key := fireAt.UTC().Format("2006-01-02")
			g, ok := milestones[key]
			if !ok {
				g = &milestoneGroup{fireAt: fireAt}
				milestones[key] = g
			} else if fireAt.Before(g.fireAt) {
				g.fireAt = fireAt
			}
			g.names = append(g.names, p.Name)
		}

		categoryNotifs, err := s.categoryReminders(ctx, p, now)
		if err != nil {
			return nil, err
		}
		out = append(out, categoryNotifs...)
	}

	for _, g := range milestones {
		out = append(out, milestoneNotification(g.fireAt, g.names))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	if len(out) > MaxScheduled {
		out = out[:MaxScheduled]
	}
	return out, nil
}

// monthlyMilestones returns the monthly-anniversary fire dates of
// birthDate falling in (now, now+window].
func monthlyMilestones(birthDate, now time.Time, window time.Duration) []time.Time {
	horizon := now.Add(window)
	var out []time.Time

	for months := 1; ; months++ {
		fireAt := birthDate.AddDate(0, months, 0)
		if fireAt.After(horizon) {
			break
		}
		if fireAt.After(now) {
			out = append(out, fireAt)
		}
	}
	return out
}

func milestoneNotification(fireAt time.Time, names []string) Notification {
	sort.Strings(names)
	title := fmt.Sprintf("%s is another month older!", names[0])
	if len(names) > 1 {
		title = fmt.Sprintf("%s are another month older!", strings.Join(names, " and "))
	}
	return Notification{
		ID:     fmt.Sprintf("milestone-%s", fireAt.UTC().Format("2006-01-02")),
		FireAt: fireAt,
		Title:  title,
		Body:   "Happy monthday! Capture a photo to remember it.",
	}
}

// categoryReminders computes the next reminder per enabled category:
// interval after the most recent closed action, advanced past now in
// interval steps, or now plus a safety minimum when there is no
// history.
func (s *Scheduler) categoryReminders(ctx context.Context, p *models.ChildProfile, now time.Time) ([]Notification, error) {
	state, err := s.actions.ActionState(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	var out []Notification
	for category, setting := range p.ReminderSettings {
		if !setting.Enabled || setting.Interval <= 0 {
			continue
		}

		fireAt := nextCategoryFire(state, category, setting.Interval, now)
		out = append(out, Notification{
			ID:     categoryReminderID(p.ID, category),
			FireAt: fireAt,
			Title:  fmt.Sprintf("Time for %s", categoryLabel(category)),
			Body:   fmt.Sprintf("It has been a while since %s's last %s entry.", p.Name, categoryLabel(category)),
		})
	}
	return out, nil
}

func nextCategoryFire(state *models.ProfileActionState, category models.ActionCategory, interval time.Duration, now time.Time) time.Time {
	last := lastClosed(state, category)
	if last.IsZero() {
		return now.Add(SafetyMinimum)
	}

	fireAt := last.Add(interval)
	for i := 0; i < maxAdvanceIterations && !fireAt.After(now); i++ {
		fireAt = fireAt.Add(interval)
	}
	if !fireAt.After(now) {
		// Iteration cap hit; fall back rather than fire in the past.
		fireAt = now.Add(SafetyMinimum)
	}
	return fireAt
}

// lastClosed returns the End of the most recent closed action in the
// category, or the zero time if there is none.
func lastClosed(state *models.ProfileActionState, category models.ActionCategory) time.Time {
	var last time.Time
	for _, a := range state.History {
		if a.Category != category || a.End == nil {
			continue
		}
		if a.End.After(last) {
			last = *a.End
		}
	}
	return last
}

func categoryReminderID(profileID uuid.UUID, category models.ActionCategory) string {
	return fmt.Sprintf("reminder-%s-%s", profileID, category)
}

func categoryLabel(category models.ActionCategory) string {
	switch category {
	case models.CategorySleep:
		return "a nap"
	case models.CategoryFeeding:
		return "a feeding"
	case models.CategoryDiaper:
		return "a diaper change"
	default:
		return string(category)
	}
}
