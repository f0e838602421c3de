package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// NotificationPublisher publishes request lifecycle events to NATS JetStream
// for consumption by the platform notification service (email delivery and
// the portal's real-time feed).
//
// Subject convention: <prefix>.<event_type>, e.g. notifications.hr.trf_approved
// Event types: <entity>_submitted, <entity>_approved, <entity>_rejected,
//              <entity>_completed, <entity>_delegated
//
// All publish operations are non-fatal: errors are logged but never
// propagated to the caller, so delivery failures never interrupt an already
// committed approval action.
type NotificationPublisher struct {
	nats          *NATSClient
	subjectPrefix string
	log           zerolog.Logger
}

// RequestEvent is the JSON schema published to NATS.
type RequestEvent struct {
	EventType  string                 `json:"event_type"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	ActorID    string                 `json:"actor_id"`
	To         []string               `json:"to"`
	CC         []string               `json:"cc,omitempty"`
	Subject    string                 `json:"subject"`
	Body       string                 `json:"body"`
	Category   string                 `json:"category,omitempty"`
	ActionURL  string                 `json:"action_url,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// client. A nil client disables publishing, which keeps local development
// working without a broker.
func NewNotificationPublisher(nats *NATSClient, subjectPrefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, subjectPrefix: subjectPrefix, log: log}
}

// PublishRequestEvent publishes one consolidated request event.
func (p *NotificationPublisher) PublishRequestEvent(ctx context.Context, event *RequestEvent) {
	if p.nats == nil {
		return
	}
	if len(event.To) == 0 && len(event.CC) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, event.EventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("entity_id", event.EntityID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("entity_id", event.EntityID).
		Int("to", len(event.To)).
		Int("cc", len(event.CC)).
		Msg("notification: event published")
}
