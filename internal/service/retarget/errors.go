package retarget

import "errors"

// Sentinel errors for the retargeting service layer.
var (
	ErrProspectNotFound = errors.New("prospect not found")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrTemplateNotFound = errors.New("no active template for channel and week")
)
