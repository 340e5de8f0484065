package domain

import "time"

// EventKind enumerates engagement event types, per channel.
type EventKind string

const (
	EventEmailScheduled EventKind = "email_scheduled"
	EventEmailSent      EventKind = "email_sent"
	EventEmailDelivered EventKind = "email_delivered"
	EventEmailOpened    EventKind = "email_opened"
	EventEmailClicked   EventKind = "email_clicked"
	EventEmailFailed    EventKind = "email_failed"

	EventSMSScheduled EventKind = "sms_scheduled"
	EventSMSSent      EventKind = "sms_sent"
	EventSMSDelivered EventKind = "sms_delivered"
	EventSMSFailed    EventKind = "sms_failed"

	EventUnsubscribed EventKind = "unsubscribed"
	EventConverted    EventKind = "converted"
)

// ScheduledEvent returns the scheduled event kind for a channel.
func ScheduledEvent(ch Channel) EventKind {
	if ch == ChannelSMS {
		return EventSMSScheduled
	}
	return EventEmailScheduled
}

// SentEvent returns the sent event kind for a channel.
func SentEvent(ch Channel) EventKind {
	if ch == ChannelSMS {
		return EventSMSSent
	}
	return EventEmailSent
}

// FailedEvent returns the failed event kind for a channel.
func FailedEvent(ch Channel) EventKind {
	if ch == ChannelSMS {
		return EventSMSFailed
	}
	return EventEmailFailed
}

// EngagementEvent is an immutable audit record of a campaign lifecycle
// transition. Events are append-only; the weekly spend accounting and all
// engagement reporting read from this log.
type EngagementEvent struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	ProspectID string    `json:"prospect_id" db:"prospect_id"`
	Kind       EventKind `json:"kind" db:"kind"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	Metadata   string    `json:"metadata" db:"metadata"`
	Cost       float64   `json:"cost" db:"cost"`
}
