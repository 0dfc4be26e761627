package model

// StatusChangeRequest asks for a bulk campaign status transition for one
// retailer. Transitions are validated per campaign; the batch is not
// atomic — valid transitions commit, invalid ones are reported back.
type StatusChangeRequest struct {
	RequestedStatus CampaignStatus `json:"requested_status"`
	CampaignSlugs   []string       `json:"campaign_slugs"`
}

// StatusChangeErrorCode identifies why a slug in the batch was rejected.
type StatusChangeErrorCode string

const (
	ErrCodeNoCampaignFound        StatusChangeErrorCode = "NO_CAMPAIGN_FOUND"
	ErrCodeInvalidStatusRequested StatusChangeErrorCode = "INVALID_STATUS_REQUESTED"
)

type StatusChangeError struct {
	Code          StatusChangeErrorCode `json:"error"`
	CampaignSlugs []string              `json:"campaigns"`
}

type StatusChangeResponse struct {
	Errors []StatusChangeError `json:"errors,omitempty"`
}
