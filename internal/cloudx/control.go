package cloudx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

// ControlClient talks to the cloud control plane: share topology,
// participant management and push-subscription registration. The data
// plane (records) goes through RecordStore instead.
type ControlClient struct {
	client *resty.Client
}

// NewControlClient returns a client for the control-plane API at baseURL.
func NewControlClient(baseURL, deviceToken string) *ControlClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(deviceToken).
		SetTimeout(30 * time.Second)
	return &ControlClient{client: c}
}

// ShareInfo describes a created share on the remote side.
type ShareInfo struct {
	ShareRecordName string               `json:"share_record_name"`
	RootRecordName  string               `json:"root_record_name"`
	Participants    []models.Participant `json:"participants"`
}

type createShareRequest struct {
	Zone       string `json:"zone"`
	RootRecord string `json:"root_record"`
}

// CreateShare registers a share object for the zone's root record and
// returns its identity and the initial participant list (the owner).
func (c *ControlClient) CreateShare(ctx context.Context, zone, rootRecord string) (*ShareInfo, error) {
	var info ShareInfo
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&createShareRequest{Zone: zone, RootRecord: rootRecord}).
		SetResult(&info).
		Post("/v1/shares")
	if err != nil {
		return nil, WrapRecoverable(fmt.Errorf("create share: %w", err))
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, remoteStatusError("create share", resp)
	}
	return &info, nil
}

// DeleteShare tears the share down. A share already gone is success.
func (c *ControlClient) DeleteShare(ctx context.Context, zone string) error {
	resp, err := c.client.R().SetContext(ctx).Delete("/v1/shares/" + zone)
	if err != nil {
		return WrapRecoverable(fmt.Errorf("delete share: %w", err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return remoteStatusError("delete share", resp)
	}
	return nil
}

// Participants returns the share's current participant list.
func (c *ControlClient) Participants(ctx context.Context, zone string) ([]models.Participant, error) {
	var out []models.Participant
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/shares/" + zone + "/participants")
	if err != nil {
		return nil, WrapRecoverable(fmt.Errorf("list participants: %w", err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrZoneNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, remoteStatusError("list participants", resp)
	}
	return out, nil
}

type setParticipantsRequest struct {
	Participants []models.Participant `json:"participants"`
}

// SetParticipants rewrites the share's participant list.
func (c *ControlClient) SetParticipants(ctx context.Context, zone string, participants []models.Participant) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&setParticipantsRequest{Participants: participants}).
		Put("/v1/shares/" + zone + "/participants")
	if err != nil {
		return WrapRecoverable(fmt.Errorf("set participants: %w", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return remoteStatusError("set participants", resp)
	}
	return nil
}

// LeaveShare removes this device's user from a share it participates in.
func (c *ControlClient) LeaveShare(ctx context.Context, zone string) error {
	resp, err := c.client.R().SetContext(ctx).Delete("/v1/shares/" + zone + "/participants/self")
	if err != nil {
		return WrapRecoverable(fmt.Errorf("leave share: %w", err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return remoteStatusError("leave share", resp)
	}
	return nil
}

type subscribeRequest struct {
	SubscriptionID string `json:"subscription_id"`
	Scope          string `json:"scope"`
}

// RegisterSubscription registers a push subscription for the scope.
// Registration is idempotent: the remote reporting that the subscription
// already exists is success, not an error.
func (c *ControlClient) RegisterSubscription(ctx context.Context, subscriptionID, scope string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&subscribeRequest{SubscriptionID: subscriptionID, Scope: scope}).
		Post("/v1/subscriptions")
	if err != nil {
		return WrapRecoverable(fmt.Errorf("register subscription: %w", err))
	}
	if resp.StatusCode() == http.StatusConflict {
		// Already registered by an earlier run.
		return nil
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return remoteStatusError("register subscription", resp)
	}
	return nil
}

func remoteStatusError(op string, resp *resty.Response) error {
	err := fmt.Errorf("%s: remote returned %d: %s", op, resp.StatusCode(), resp.String())
	if resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests {
		return WrapRecoverable(err)
	}
	return err
}
