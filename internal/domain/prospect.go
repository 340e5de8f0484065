package domain

import (
	"strings"
	"time"
)

// ProspectStatus enumerates the lifecycle states of a prospect.
type ProspectStatus string

const (
	ProspectPending       ProspectStatus = "pending"
	ProspectPaymentFailed ProspectStatus = "payment_failed"
	ProspectConverted     ProspectStatus = "converted"
	ProspectUnsubscribed  ProspectStatus = "unsubscribed"
	ProspectAbandoned     ProspectStatus = "abandoned"
)

// MaxRetargetingWeek is the last week of the drip sequence. A prospect whose
// counter would pass it is marked abandoned instead of receiving more mail.
const MaxRetargetingWeek = 4

// Prospect is a lead who started the purchase flow but never completed
// payment. Prospects are the targets of the retargeting drip sequence.
type Prospect struct {
	ID               string         `json:"id" db:"id"`
	Name             string         `json:"name" db:"name"`
	Email            string         `json:"email" db:"email"`
	Phone            string         `json:"phone" db:"phone"`
	MarketingConsent bool           `json:"marketing_consent" db:"marketing_consent"`
	Status           ProspectStatus `json:"status" db:"status"`

	// RetargetingWeek is the last drip week scheduled for this prospect
	// (0 = none yet). It only ever increases, up to MaxRetargetingWeek.
	RetargetingWeek int `json:"retargeting_week" db:"retargeting_week"`

	UnsubscribedAt      *time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`
	LastRetargetingSent *time.Time `json:"last_retargeting_sent" db:"last_retargeting_sent"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
}

// FirstName returns the first space-delimited token of the prospect's name.
func (p *Prospect) FirstName() string {
	name := strings.TrimSpace(p.Name)
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		return name[:idx]
	}
	return name
}

// IsUnsubscribed reports whether the prospect has opted out. Unsubscribed
// prospects are permanently excluded from eligibility.
func (p *Prospect) IsUnsubscribed() bool {
	return p.Status == ProspectUnsubscribed || p.UnsubscribedAt != nil
}
