package mq

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// ModerationChannel is the broker channel carrying moderation events
// for external consumers (audit tooling, notification bots).
const ModerationChannel = "community.moderation"

// Moderation event types.
const (
	EventUserBanToggled  = "user.ban_toggled"
	EventCoreGranted     = "user.core_granted"
	EventFanartDecided   = "fanart.decided"
	EventMessageDeleted  = "message.deleted"
	EventMessageRestored = "message.restored"
)

// ModerationEvent describes a single admin action on a user or on
// user-submitted content.
type ModerationEvent struct {
	// Type is one of the Event* constants.
	Type string `json:"type"`

	// ActorID is the admin who performed the action.
	ActorID int `json:"actorId"`

	// SubjectID is the user the action targets (banned user, Core
	// grantee, fanart submitter, message author).
	SubjectID int `json:"subjectId,omitempty"`

	// ObjectID is the content record acted on (message or fanart id),
	// zero for account-level actions.
	ObjectID int `json:"objectId,omitempty"`

	// Detail carries the action outcome ("banned", "unbanned",
	// "approved", "rejected").
	Detail string `json:"detail,omitempty"`

	// OccurredAt is when the action was taken.
	OccurredAt time.Time `json:"occurredAt"`
}

// PublishModeration sends a moderation event on the moderation channel.
// Publishing is best-effort: failures are logged and never surfaced to
// the request that triggered the event.
func PublishModeration(ctx context.Context, broker *MQ, event ModerationEvent) {
	if broker == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("mq: marshal moderation event: %v", err)
		return
	}
	attrs := map[string]string{"type": event.Type}
	if _, err := broker.Publish(ctx, ModerationChannel, data, attrs); err != nil {
		log.Printf("mq: publish moderation event %s: %v", event.Type, err)
	}
}
