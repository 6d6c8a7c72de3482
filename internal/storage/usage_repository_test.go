package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashmvp/internal/models"
)

func setupMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	return NewDBFromConn(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestUsageRepository_Insert(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	record := &models.UsageRecord{
		Timestamp:    "2026-08-27T10:00:00Z",
		Feature:      "pdf-summarizer",
		Provider:     "gemini",
		Model:        "gemini-2.5-flash",
		InputTokens:  500,
		OutputTokens: 150,
		Cost:         0.0003325,
		UserID:       "alice",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO usage_records")).
		WithArgs(record.Timestamp, record.Feature, record.Provider, record.Model,
			record.InputTokens, record.OutputTokens, record.Cost, record.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, repo.Insert(context.Background(), record))
	assert.Equal(t, int64(42), record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_InsertFillsDefaults(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	record := &models.UsageRecord{
		Feature:  "chess-trainer",
		Provider: "openai",
		Model:    "gpt-4o-mini",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO usage_records")).
		WithArgs(sqlmock.AnyArg(), record.Feature, record.Provider, record.Model,
			0, 0, 0.0, "anonymous").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	require.NoError(t, repo.Insert(context.Background(), record))

	// The repository must have assigned a parseable RFC 3339 timestamp.
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`, record.Timestamp)
	assert.Equal(t, "anonymous", record.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_InsertRejectsInvalid(t *testing.T) {
	db, _ := setupMockDB(t)
	repo := NewUsageRepository(db)

	tests := []struct {
		name   string
		record models.UsageRecord
	}{
		{"missing feature", models.UsageRecord{Provider: "gemini", Model: "gemini-2.5-flash"}},
		{"negative input tokens", models.UsageRecord{Feature: "x", InputTokens: -1}},
		{"negative output tokens", models.UsageRecord{Feature: "x", OutputTokens: -1}},
		{"negative cost", models.UsageRecord{Feature: "x", Cost: -0.01}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := repo.Insert(context.Background(), &tc.record)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestUsageRepository_InsertStorageError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO usage_records")).
		WillReturnError(errors.New("connection reset"))

	err := repo.Insert(context.Background(), &models.UsageRecord{Feature: "x"})
	assert.Error(t, err)
}

func TestUsageRepository_Summary(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	rows := sqlmock.NewRows([]string{"total_calls", "total_cost", "total_input_tokens", "total_output_tokens"}).
		AddRow(int64(10), 1.25, int64(50000), int64(12000))
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	summary, err := repo.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), summary.TotalCalls)
	assert.Equal(t, 1.25, summary.TotalCost)
	assert.Equal(t, int64(50000), summary.TotalInputTokens)
	assert.Equal(t, int64(12000), summary.TotalOutputTokens)
}

func TestUsageRepository_SummaryEmptyLedger(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	// COALESCE guarantees zeros, never NULLs, on an empty table.
	rows := sqlmock.NewRows([]string{"total_calls", "total_cost", "total_input_tokens", "total_output_tokens"}).
		AddRow(int64(0), 0.0, int64(0), int64(0))
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	summary, err := repo.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Summary{}, summary)
}

func TestUsageRepository_TopFeaturesByCost(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	rows := sqlmock.NewRows([]string{"feature", "calls", "cost"}).
		AddRow("pdf-summarizer", int64(7), 0.90).
		AddRow("chess-trainer", int64(3), 0.10)
	mock.ExpectQuery("SELECT feature").WithArgs(10).WillReturnRows(rows)

	features, err := repo.TopFeaturesByCost(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "pdf-summarizer", features[0].Feature)
	assert.Equal(t, 0.90, features[0].Cost)
	assert.GreaterOrEqual(t, features[0].Cost, features[1].Cost)
}

func TestUsageRepository_TopFeaturesEmptyIsNotNil(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	mock.ExpectQuery("SELECT feature").WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"feature", "calls", "cost"}))

	features, err := repo.TopFeaturesByCost(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, features)
	assert.Empty(t, features)
}

func TestUsageRepository_TopModelsByCost(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	rows := sqlmock.NewRows([]string{"provider", "model", "calls", "cost"}).
		AddRow("gemini", "gemini-2.5-flash", int64(5), 0.50).
		AddRow("openai", "gpt-4o", int64(1), 0.25)
	mock.ExpectQuery("SELECT provider").WithArgs(10).WillReturnRows(rows)

	modelCosts, err := repo.TopModelsByCost(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, modelCosts, 2)
	assert.Equal(t, "gemini", modelCosts[0].Provider)
	assert.Equal(t, "gemini-2.5-flash", modelCosts[0].Model)
}

func TestUsageRepository_InsertBatch(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	records := []*models.UsageRecord{
		{Timestamp: "2026-08-27T10:00:00Z", Feature: "a", Provider: "gemini", Model: "gemini-2.5-flash", Cost: 0.01},
		{Timestamp: "2026-08-27T10:01:00Z", Feature: "b", Provider: "openai", Model: "gpt-4o", Cost: 0.02},
	}

	mock.ExpectBegin()
	for range records {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO usage_records")).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.InsertBatch(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_InsertBatchRejectsInvalid(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	// One bad record fails the batch before any statement runs; the
	// queued path gets the same validation as the synchronous one.
	err := repo.InsertBatch(context.Background(), []*models.UsageRecord{
		{Feature: "a", Provider: "gemini", Model: "gemini-2.5-flash"},
		{Feature: "", Provider: "openai", Model: "gpt-4o"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.NoError(t, mock.ExpectationsWereMet(), "no transaction may start for an invalid batch")
}

func TestUsageRepository_InsertBatchRollsBackOnError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUsageRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO usage_records")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.InsertBatch(context.Background(), []*models.UsageRecord{
		{Feature: "a", Provider: "gemini", Model: "gemini-2.5-flash"},
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
