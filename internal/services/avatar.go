package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/store/profiles"
)

// AvatarLoader performs asynchronous avatar loads for the UI layer.
// Every Load supersedes the previous one: when a stale in-flight load
// eventually completes, its result is silently discarded instead of
// overwriting the newer request's.
type AvatarLoader struct {
	repo   profiles.Repository
	logger logging.Logger

	mu      sync.Mutex
	current uuid.UUID
}

// NewAvatarLoader returns an AvatarLoader over the profile repository.
func NewAvatarLoader(repo profiles.Repository, logger logging.Logger) *AvatarLoader {
	return &AvatarLoader{repo: repo, logger: logger}
}

// Load fetches the profile's avatar bytes off the calling goroutine and
// hands them to deliver, unless a newer Load was issued meanwhile.
func (l *AvatarLoader) Load(ctx context.Context, profileID uuid.UUID, deliver func([]byte)) {
	reqID := uuid.New()

	l.mu.Lock()
	l.current = reqID
	l.mu.Unlock()

	go func() {
		p, err := l.repo.GetByID(ctx, profileID)

		l.mu.Lock()
		stale := l.current != reqID
		l.mu.Unlock()
		if stale {
			return
		}

		if err != nil {
			l.logger.Warn(ctx, "avatar load failed", "profile_id", profileID, "error", err)
			return
		}
		deliver(p.Avatar)
	}()
}
