package cloudx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"

	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
)

// Notification is a decoded database-change push. Payloads arrive opaque
// over the push channel; anything that fails to decode is dropped.
type Notification struct {
	// NotificationID identifies this push for de-duplication; the
	// backend may deliver the same notification more than once.
	NotificationID string `json:"notification_id"`

	// Scope is the database scope that changed (private or shared).
	Scope string `json:"scope"`

	// Zone names the changed partition, when known.
	Zone string `json:"zone,omitempty"`

	SentAt time.Time `json:"sent_at"`
}

// PushChannel maintains a websocket connection to the cloud push
// endpoint and delivers decoded notifications. It reconnects with a
// fixed backoff until the context is cancelled.
type PushChannel struct {
	url     string
	logger  logging.Logger
	backoff time.Duration
}

// NewPushChannel returns a channel for the given websocket URL.
func NewPushChannel(url string, logger logging.Logger) *PushChannel {
	return &PushChannel{url: url, logger: logger, backoff: 5 * time.Second}
}

// Run blocks, delivering notifications to deliver until ctx is
// cancelled. Connection failures are logged and retried; they never
// propagate to the caller.
func (p *PushChannel) Run(ctx context.Context, deliver func(Notification)) {
	for {
		if err := p.listenOnce(ctx, deliver); err != nil && ctx.Err() == nil {
			p.logger.Warn(ctx, "push channel disconnected", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.backoff):
		}
	}
}

func (p *PushChannel) listenOnce(ctx context.Context, deliver func(Notification)) error {
	conn, _, err := websocket.Dial(ctx, p.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var n Notification
		if err := json.Unmarshal(data, &n); err != nil {
			p.logger.Warn(ctx, "dropping undecodable push payload", "error", err)
			continue
		}
		deliver(n)
	}
}
