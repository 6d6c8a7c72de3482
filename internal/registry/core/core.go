// Package core hosts the backend's built-in routes: health, version
// and the AI provider proxy.
package core

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gorilla/mux"

	"flashmvp/internal/models"
	"flashmvp/internal/utils"
)

// envKeysToCheck are the provider credentials the health endpoint
// reports on without revealing their values.
var envKeysToCheck = []string{
	"GEMINI_API_KEY",
	"OPENAI_API_KEY",
	"CLAUDE_API_KEY",
	"QWEN_API_KEY",
}

// UsageRecorder accepts usage records for asynchronous persistence.
type UsageRecorder interface {
	Enqueue(ctx context.Context, record *models.UsageRecord) error
}

// Options configures the core feature. Zero values get sensible
// defaults in New.
type Options struct {
	Usage         UsageRecorder // nil disables self-recorded usage
	Logger        *utils.Logger
	Client        *http.Client
	GeminiBaseURL string
	Version       string
}

type Feature struct {
	usage         UsageRecorder
	logger        *utils.Logger
	client        *http.Client
	geminiBaseURL string
	version       string
}

func New(opts Options) *Feature {
	if opts.Logger == nil {
		opts.Logger = utils.NewLogger("core")
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 120 * time.Second}
	}
	if opts.GeminiBaseURL == "" {
		opts.GeminiBaseURL = "https://generativelanguage.googleapis.com"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Feature{
		usage:         opts.Usage,
		logger:        opts.Logger,
		client:        opts.Client,
		geminiBaseURL: opts.GeminiBaseURL,
		version:       opts.Version,
	}
}

func (f *Feature) Name() string { return "core" }

// Prefix is empty: core routes live at the /api root.
func (f *Feature) Prefix() string { return "" }

func (f *Feature) Mount(r *mux.Router) {
	r.HandleFunc("/health", f.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", f.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/ai-proxy", f.handleAIProxy).Methods(http.MethodPost)
}

// HealthResponse reports service liveness plus which provider keys are
// configured.
type HealthResponse struct {
	Success      bool              `json:"success"`
	Status       string            `json:"status"`
	Message      string            `json:"message"`
	Runtime      string            `json:"runtime"`
	Timestamp    string            `json:"timestamp"`
	EnvVarsCheck map[string]string `json:"envVarsCheck"`
}

func (f *Feature) handleHealth(w http.ResponseWriter, r *http.Request) {
	envCheck := make(map[string]string, len(envKeysToCheck))
	for _, key := range envKeysToCheck {
		if os.Getenv(key) != "" {
			envCheck[key] = "set"
		} else {
			envCheck[key] = "not set"
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, HealthResponse{
		Success:      true,
		Status:       "healthy",
		Message:      "flashmvp backend is working",
		Runtime:      "Go " + runtime.Version(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		EnvVarsCheck: envCheck,
	})
}

// VersionResponse reports build and runtime versions.
type VersionResponse struct {
	ServiceVersion string `json:"serviceVersion"`
	GoVersion      string `json:"goVersion"`
	Platform       string `json:"platform"`
}

func (f *Feature) handleVersion(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, VersionResponse{
		ServiceVersion: f.version,
		GoVersion:      runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
	})
}
