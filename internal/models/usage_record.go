package models

// UsageRecord is one row of the append-only usage ledger: a single
// completed AI call, priced at insertion time. Rows are never updated
// or deleted.
type UsageRecord struct {
	ID           int64   `db:"id" json:"id,omitempty"`
	Timestamp    string  `db:"timestamp" json:"timestamp,omitempty"`
	Feature      string  `db:"feature" json:"feature"`
	Provider     string  `db:"provider" json:"provider"`
	Model        string  `db:"model" json:"model"`
	InputTokens  int     `db:"input_tokens" json:"inputTokens"`
	OutputTokens int     `db:"output_tokens" json:"outputTokens"`
	Cost         float64 `db:"cost" json:"cost"`
	UserID       string  `db:"user_id" json:"userId,omitempty"`
}

// Summary holds the overall ledger totals.
type Summary struct {
	TotalCalls        int64   `db:"total_calls" json:"totalCalls"`
	TotalCost         float64 `db:"total_cost" json:"totalCost"`
	TotalInputTokens  int64   `db:"total_input_tokens" json:"totalInputTokens"`
	TotalOutputTokens int64   `db:"total_output_tokens" json:"totalOutputTokens"`
}

// FeatureCost is one row of the top-features-by-cost aggregate.
type FeatureCost struct {
	Feature string  `db:"feature" json:"feature"`
	Calls   int64   `db:"calls" json:"calls"`
	Cost    float64 `db:"cost" json:"cost"`
}

// ModelCost is one row of the top-models-by-cost aggregate.
type ModelCost struct {
	Provider string  `db:"provider" json:"provider"`
	Model    string  `db:"model" json:"model"`
	Calls    int64   `db:"calls" json:"calls"`
	Cost     float64 `db:"cost" json:"cost"`
}

// Report is the full usage report returned by the gateway. Slices are
// always non-nil so they encode as [] rather than null.
type Report struct {
	Summary     Summary       `json:"summary"`
	TopFeatures []FeatureCost `json:"topFeatures"`
	ModelUsage  []ModelCost   `json:"modelUsage"`
}

// FeatureDescriptor is a static catalog entry describing a feature page
// registered into the shared shell. It takes no part in ledger flows.
type FeatureDescriptor struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsFullPath  bool   `json:"isFullPath"`
}
