package gateway

import (
	"io"
	"net/http"

	"flashmvp/internal/utils"
)

// hopByHopHeaders are connection-scoped and must not be forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// credentialHeaders carry gateway session state that the compute
// backend has no business seeing.
var credentialHeaders = []string{
	"Authorization",
	"Cookie",
}

// handleProxy forwards /api/* requests to the compute backend.
//
// When no backend is configured the request fails with 503 before any
// outbound connection is attempted.
func (d *Dependencies) handleProxy(w http.ResponseWriter, r *http.Request) {
	if d.backendURL == "" {
		d.Metrics.RecordProxyError()
		utils.RespondWithError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}

	target := d.backendURL + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		d.Metrics.RecordProxyError()
		utils.RespondWithError(w, http.StatusBadGateway, "failed to build backend request")
		return
	}

	copyHeaders(outReq.Header, r.Header)
	for _, h := range hopByHopHeaders {
		outReq.Header.Del(h)
	}
	for _, h := range credentialHeaders {
		outReq.Header.Del(h)
	}
	outReq.Header.Set("X-Forwarded-Host", r.Host)

	resp, err := d.client.Do(outReq)
	if err != nil {
		d.Metrics.RecordProxyError()
		d.Logger.Error("proxy request failed", "target", target, "error", err)
		utils.RespondWithError(w, http.StatusBadGateway, "backend unreachable")
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	for _, h := range hopByHopHeaders {
		w.Header().Del(h)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		d.Logger.Warn("proxy response copy interrupted", "target", target, "error", err)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
