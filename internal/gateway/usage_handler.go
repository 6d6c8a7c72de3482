package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"flashmvp/internal/auth"
	"flashmvp/internal/models"
	"flashmvp/internal/storage"
	"flashmvp/internal/utils"
)

// reportLimit caps the top-features and top-models aggregates.
const reportLimit = 10

// TrackUsageResponse is the success envelope for POST /api/track-usage.
type TrackUsageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleTrackUsage appends one record to the usage ledger.
//
// The write is synchronous: once the client sees success, an immediate
// report request reflects the record.
func (d *Dependencies) handleTrackUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var record models.UsageRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if record.UserID == "" {
		record.UserID = d.resolveUser(r)
	}

	if err := d.Usage.Insert(r.Context(), &record); err != nil {
		if errors.Is(err, storage.ErrInvalidRecord) {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		d.Logger.Error("ledger insert failed", "feature", record.Feature, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to track usage")
		return
	}

	d.Metrics.RecordUsage(record.Feature)
	if d.Archiver != nil {
		d.Archiver.Enqueue(&record)
	}

	utils.RespondWithJSON(w, http.StatusOK, TrackUsageResponse{
		Success: true,
		Message: "Usage tracked successfully",
	})
}

// handleUsageReport assembles the three ledger aggregates. They are
// independent queries, so they run concurrently.
func (d *Dependencies) handleUsageReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	report, err := d.buildReport(ctx)
	if err != nil {
		d.Logger.Error("usage report failed", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to build usage report")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, report)
}

func (d *Dependencies) buildReport(ctx context.Context) (*models.Report, error) {
	report := &models.Report{
		TopFeatures: []models.FeatureCost{},
		ModelUsage:  []models.ModelCost{},
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		summary, err := d.Usage.Summary(ctx)
		if err != nil {
			fail(err)
			return
		}
		report.Summary = summary
	}()
	go func() {
		defer wg.Done()
		features, err := d.Usage.TopFeaturesByCost(ctx, reportLimit)
		if err != nil {
			fail(err)
			return
		}
		if features != nil {
			report.TopFeatures = features
		}
	}()
	go func() {
		defer wg.Done()
		usage, err := d.Usage.TopModelsByCost(ctx, reportLimit)
		if err != nil {
			fail(err)
			return
		}
		if usage != nil {
			report.ModelUsage = usage
		}
	}()
	wg.Wait()

	if len(errs) > 0 {
		return nil, errs[0]
	}
	return report, nil
}

// resolveUser extracts a user id from the session token, accepting
// either a Bearer header or the session cookie. Absent or unreadable
// tokens resolve to the anonymous user rather than rejecting the call.
func (d *Dependencies) resolveUser(r *http.Request) string {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	} else if c, err := r.Cookie("flashmvp_session"); err == nil {
		token = c.Value
	}
	if token == "" {
		return auth.AnonymousUser
	}
	if d.Sessions != nil {
		return d.Sessions.UserID(token)
	}
	return auth.UserIDFromLegacyToken(token)
}
