package safety

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// maxBodyBytes caps request bodies on the POST routes.
const maxBodyBytes = 1 << 20

// CheckRequest is the body of POST /check. Options left out of the body keep
// their DefaultOptions values.
type CheckRequest struct {
	URLs    []string `json:"urls"`
	APIKey  string   `json:"api_key,omitempty"`
	Options *Options `json:"options,omitempty"`
}

// DomainInfoRequest is the body of POST /domain-info.
type DomainInfoRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the checker over HTTP.
type Handler struct {
	checker *Checker
	apiKey  string
	logger  zerolog.Logger
}

// NewHandler wires checker behind HTTP. apiKey is used for /check requests
// that do not carry their own key.
func NewHandler(checker *Checker, apiKey string, logger zerolog.Logger) *Handler {
	return &Handler{checker: checker, apiKey: apiKey, logger: logger}
}

// Routes registers the service endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/check", h.Check)
	mux.HandleFunc("/domain-info", h.DomainInfo)
	mux.HandleFunc("/health", h.Health)
}

// Check classifies the posted urls.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// options fields missing from the body keep their defaults
	opts := DefaultOptions()
	req := CheckRequest{Options: &opts}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Options == nil {
		req.Options = &opts
	}

	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, ErrNoURLs.Error())
		return
	}

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = h.apiKey
	}
	if apiKey == "" {
		writeError(w, http.StatusBadRequest, "api_key required")
		return
	}

	result, err := h.checker.CheckURLSafety(r.Context(), req.URLs, apiKey, *req.Options)
	if err != nil {
		var urlErr *InvalidURLError
		var apiErr *ThreatAPIError
		switch {
		case errors.As(err, &urlErr):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &apiErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)

	h.logger.Info().
		Str("component", "http").
		Int("urls", len(req.URLs)).
		Int("unsafe", len(result.Unsafe)).
		Msg("check completed")
}

// DomainInfo returns WHOIS data for one posted url.
func (h *Handler) DomainInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req DomainInfoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.checker.FetchDomainInfo(req.URL, req.Label)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody reads at most maxBodyBytes of JSON into v and writes the error
// response itself when that fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
