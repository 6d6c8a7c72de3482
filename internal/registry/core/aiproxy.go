package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"flashmvp/internal/auth"
	"flashmvp/internal/models"
	"flashmvp/internal/pricing"
	"flashmvp/internal/utils"
)

// AIProxyRequest is the payload feature pages send to run a model call
// through the backend's provider credentials.
type AIProxyRequest struct {
	Provider   string   `json:"provider"`
	Model      string   `json:"model"`
	Prompt     string   `json:"prompt"`
	Image      string   `json:"image,omitempty"`
	Images     []string `json:"images,omitempty"`
	System     string   `json:"system,omitempty"`
	Audio      string   `json:"audio,omitempty"`
	APIKeyTier string   `json:"apiKeyTier,omitempty"`
	Feature    string   `json:"feature,omitempty"`
}

// AIProxyResponse carries the model output plus the token counts the
// usage ledger needs.
type AIProxyResponse struct {
	Success      bool   `json:"success"`
	Response     string `json:"response"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
}

func (f *Feature) handleAIProxy(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	var req AIProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Provider == "" || req.Model == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "provider and model are required")
		return
	}
	if req.Prompt == "" {
		req.Prompt = "Hello, AI!"
	}

	envKeyName := strings.ToUpper(req.Provider) + "_API_KEY"
	if req.Provider == "gemini" && req.APIKeyTier == "paid" {
		envKeyName = "GEMINI_API_KEY_PAID"
	}
	apiKey := os.Getenv(envKeyName)
	if apiKey == "" {
		utils.RespondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("API key not configured on server: set %s", envKeyName))
		return
	}

	var resp *AIProxyResponse
	var err error
	if req.Provider == "gemini" {
		resp, err = f.callGemini(r.Context(), apiKey, &req)
		if err != nil {
			f.logger.Error("gemini call failed", "request_id", reqID, "model", req.Model, "error", err)
			utils.RespondWithError(w, http.StatusBadGateway, err.Error())
			return
		}
	} else {
		// Providers other than gemini are mocked until their clients
		// are implemented.
		resp = &AIProxyResponse{
			Success:      true,
			Response:     fmt.Sprintf("Mock response from %s %s.", req.Provider, req.Model),
			InputTokens:  10,
			OutputTokens: 20,
			Provider:     req.Provider,
			Model:        req.Model,
		}
	}

	f.recordUsage(reqID, &req, resp)
	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// recordUsage prices the call and hands the record to the async queue.
// Failures are logged and dropped so a ledger hiccup never fails the
// model call that already succeeded.
func (f *Feature) recordUsage(reqID string, req *AIProxyRequest, resp *AIProxyResponse) {
	if f.usage == nil {
		return
	}

	cost, err := pricing.Calculate(resp.Provider, resp.Model, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		f.logger.Warn("usage not recorded", "request_id", reqID, "provider", resp.Provider, "model", resp.Model, "error", err)
		return
	}

	feature := req.Feature
	if feature == "" {
		feature = "ai-proxy"
	}
	record := &models.UsageRecord{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Feature:      feature,
		Provider:     resp.Provider,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Cost:         cost.TotalCost,
		UserID:       auth.AnonymousUser,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.usage.Enqueue(ctx, record); err != nil {
		f.logger.Warn("usage enqueue failed", "request_id", reqID, "feature", feature, "error", err)
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig map[string]any   `json:"generationConfig"`
	SafetySettings   []map[string]any `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (f *Feature) callGemini(ctx context.Context, apiKey string, req *AIProxyRequest) (*AIProxyResponse, error) {
	parts := []geminiPart{}
	if req.System != "" {
		parts = append(parts, geminiPart{Text: "System: " + req.System + "\n\n"})
	}
	parts = append(parts, geminiPart{Text: req.Prompt})

	images := req.Images
	if req.Image != "" && len(images) == 0 {
		images = []string{req.Image}
	}
	for _, img := range images {
		mimeType := "image/png"
		// Base64 JPEG payloads start with /9j/.
		if strings.HasPrefix(img, "/9j/") {
			mimeType = "image/jpeg"
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mimeType, Data: img}})
	}
	if req.Audio != "" {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: "audio/wav", Data: req.Audio}})
	}

	body := geminiRequest{
		GenerationConfig: map[string]any{
			"temperature":     0.7,
			"topK":            1,
			"topP":            1,
			"maxOutputTokens": 20000,
		},
		SafetySettings: []map[string]any{
			{"category": "HARM_CATEGORY_HARASSMENT", "threshold": "BLOCK_NONE"},
			{"category": "HARM_CATEGORY_HATE_SPEECH", "threshold": "BLOCK_NONE"},
			{"category": "HARM_CATEGORY_SEXUALLY_EXPLICIT", "threshold": "BLOCK_NONE"},
			{"category": "HARM_CATEGORY_DANGEROUS_CONTENT", "threshold": "BLOCK_NONE"},
		},
	}
	body.Contents = append(body.Contents, struct {
		Parts []geminiPart `json:"parts"`
	}{Parts: parts})

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gemini request: %w", err)
	}

	// The key travels in a header, never the URL: transport errors
	// embed the full URL and end up in client-facing error bodies.
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", f.geminiBaseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gemini response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini API error (%d): %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}

	var text strings.Builder
	if len(result.Candidates) > 0 {
		candidate := result.Candidates[0]
		for _, part := range candidate.Content.Parts {
			text.WriteString(part.Text)
		}
		if text.Len() == 0 && candidate.FinishReason == "SAFETY" {
			return nil, fmt.Errorf("response blocked by gemini safety settings")
		}
	}

	return &AIProxyResponse{
		Success:      true,
		Response:     text.String(),
		InputTokens:  result.UsageMetadata.PromptTokenCount,
		OutputTokens: result.UsageMetadata.CandidatesTokenCount,
		Provider:     "gemini",
		Model:        req.Model,
	}, nil
}
