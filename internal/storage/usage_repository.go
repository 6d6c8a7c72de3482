package storage

import (
	"context"
	"fmt"
	"time"

	"flashmvp/internal/models"
)

// UsageRepository handles usage ledger database operations. The ledger
// is append-only: there are no update or delete paths.
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// validateRecord rejects records no insert path may write. Both the
// synchronous endpoint and the queued batch path go through it.
func validateRecord(record *models.UsageRecord) error {
	if record.Feature == "" {
		return fmt.Errorf("%w: feature is required", ErrInvalidRecord)
	}
	if record.InputTokens < 0 || record.OutputTokens < 0 {
		return fmt.Errorf("%w: token counts must be non-negative", ErrInvalidRecord)
	}
	if record.Cost < 0 {
		return fmt.Errorf("%w: cost must be non-negative", ErrInvalidRecord)
	}
	return nil
}

// fillDefaults supplies the server-side timestamp and anonymous user id
// when the submitter omitted them.
func fillDefaults(record *models.UsageRecord) {
	if record.Timestamp == "" {
		record.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if record.UserID == "" {
		record.UserID = "anonymous"
	}
}

// Insert appends a usage record to the ledger. The record's cost is
// stored as submitted; it is never recomputed here. A missing timestamp
// is filled with the current UTC time in RFC 3339 form.
func (r *UsageRepository) Insert(ctx context.Context, record *models.UsageRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	fillDefaults(record)

	query := `
		INSERT INTO usage_records (
			timestamp, feature, provider, model,
			input_tokens, output_tokens, cost, user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		record.Timestamp, record.Feature, record.Provider, record.Model,
		record.InputTokens, record.OutputTokens, record.Cost, record.UserID,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	return nil
}

// InsertBatch appends several records in one transaction. Validation
// matches Insert: one bad record rejects the whole batch before any
// statement runs, so the caller can fall back to per-record handling.
func (r *UsageRepository) InsertBatch(ctx context.Context, records []*models.UsageRecord) error {
	for _, record := range records {
		if err := validateRecord(record); err != nil {
			return err
		}
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO usage_records (
			timestamp, feature, provider, model,
			input_tokens, output_tokens, cost, user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, record := range records {
		fillDefaults(record)
		if _, err := tx.ExecContext(ctx, query,
			record.Timestamp, record.Feature, record.Provider, record.Model,
			record.InputTokens, record.OutputTokens, record.Cost, record.UserID,
		); err != nil {
			return fmt.Errorf("failed to insert usage record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Summary returns the overall ledger totals. An empty ledger yields a
// zero-valued summary, never an error.
func (r *UsageRepository) Summary(ctx context.Context) (models.Summary, error) {
	query := `
		SELECT
			COUNT(*)                       AS total_calls,
			COALESCE(SUM(cost), 0)          AS total_cost,
			COALESCE(SUM(input_tokens), 0)  AS total_input_tokens,
			COALESCE(SUM(output_tokens), 0) AS total_output_tokens
		FROM usage_records
	`

	var summary models.Summary
	if err := r.db.conn.GetContext(ctx, &summary, query); err != nil {
		return models.Summary{}, fmt.Errorf("failed to get usage summary: %w", err)
	}
	return summary, nil
}

// TopFeaturesByCost returns the limit most expensive features, summed
// cost descending.
func (r *UsageRepository) TopFeaturesByCost(ctx context.Context, limit int) ([]models.FeatureCost, error) {
	query := `
		SELECT feature, COUNT(*) AS calls, COALESCE(SUM(cost), 0) AS cost
		FROM usage_records
		GROUP BY feature
		ORDER BY cost DESC
		LIMIT $1
	`

	features := make([]models.FeatureCost, 0, limit)
	if err := r.db.conn.SelectContext(ctx, &features, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get top features: %w", err)
	}
	return features, nil
}

// TopModelsByCost returns the limit most expensive (provider, model)
// pairs, summed cost descending.
func (r *UsageRepository) TopModelsByCost(ctx context.Context, limit int) ([]models.ModelCost, error) {
	query := `
		SELECT provider, model, COUNT(*) AS calls, COALESCE(SUM(cost), 0) AS cost
		FROM usage_records
		GROUP BY provider, model
		ORDER BY cost DESC
		LIMIT $1
	`

	modelCosts := make([]models.ModelCost, 0, limit)
	if err := r.db.conn.SelectContext(ctx, &modelCosts, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get model usage: %w", err)
	}
	return modelCosts, nil
}
