package model

// Enrichment is a validated model output ready to be committed.
type Enrichment struct {
	Bio      string   `json:"bio"`
	Strategy string   `json:"strategy"`
	Insights []string `json:"insights"`
}

// Error codes persisted in enrichedError for interpretation and validation
// failures. Generation failures persist the provider error message instead.
const (
	ErrCodeInvalidJSON          = "invalid_json"
	ErrCodeBioTooShort          = "bio_too_short"
	ErrCodeStrategyTooShort     = "strategy_too_short"
	ErrCodeInsufficientInsights = "insufficient_insights"
)

// Validation thresholds for a committed enrichment.
const (
	MinBioLength      = 20
	MinStrategyLength = 150
	MinInsights       = 3
	MaxInsights       = 6
)
