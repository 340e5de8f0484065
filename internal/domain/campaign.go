package domain

import (
	"time"
)

// Channel enumerates the delivery channels for a campaign message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignDelivered CampaignStatus = "delivered"
	CampaignOpened    CampaignStatus = "opened"
	CampaignClicked   CampaignStatus = "clicked"
	CampaignFailed    CampaignStatus = "failed"
	CampaignConverted CampaignStatus = "converted"
)

// MaxRetryCount is the maximum number of reconciliation retries for a failed
// campaign. Once reached, the campaign stays failed.
const MaxRetryCount = 3

// Campaign is one scheduled outbound message tied to a prospect and a drip
// week. Campaigns are created by the scheduler, delivered by the dispatcher,
// and updated by engagement tracking. They are never deleted.
type Campaign struct {
	ID         string         `json:"id" db:"id"`
	ProspectID string         `json:"prospect_id" db:"prospect_id"`
	Channel    Channel        `json:"channel" db:"channel"`
	Status     CampaignStatus `json:"status" db:"status"`

	// Subject is only set for email campaigns.
	Subject string `json:"subject" db:"subject"`
	Body    string `json:"body" db:"body"`

	ScheduledAt time.Time  `json:"scheduled_at" db:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at" db:"sent_at"`
	OpenedAt    *time.Time `json:"opened_at" db:"opened_at"`
	ClickedAt   *time.Time `json:"clicked_at" db:"clicked_at"`

	ExternalMessageID string `json:"external_message_id" db:"external_message_id"`
	DeliveryStatus    string `json:"delivery_status" db:"delivery_status"`
	ErrorMessage      string `json:"error_message" db:"error_message"`

	RetryCount   int     `json:"retry_count" db:"retry_count"`
	CostIncurred float64 `json:"cost_incurred" db:"cost_incurred"`
	CampaignWeek int     `json:"campaign_week" db:"campaign_week"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CanRetry reports whether the reconciler may requeue this campaign.
func (c *Campaign) CanRetry() bool {
	return c.Status == CampaignFailed && c.RetryCount < MaxRetryCount
}

// IsTerminal returns true if the campaign can no longer transition on its own:
// converted, or failed with retries exhausted.
func (c *Campaign) IsTerminal() bool {
	if c.Status == CampaignConverted {
		return true
	}
	return c.Status == CampaignFailed && c.RetryCount >= MaxRetryCount
}
