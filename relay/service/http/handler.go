package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	core "hcsrelay/relay/service/core"

	log "github.com/sirupsen/logrus"
)

// ErrorResult is the body of every non-2xx response
type ErrorResult struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details string `json:"details,omitempty"`
}

// RouteOptions configures the optional parts of the route table
type RouteOptions struct {
	HealthPath     string
	MetricsPath    string
	MetricsHandler http.Handler // nil disables the metrics route
	AllowedOrigins []string
}

// RelayHandler serves the relay's HTTP API
type RelayHandler struct {
	svc          *core.Service
	logger       log.FieldLogger
	maxBodyBytes int64
}

// NewRelayHandler creates a new RelayHandler
func NewRelayHandler(s *core.Service, l log.FieldLogger, maxBodyBytes int64) *RelayHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 10 << 20
	}
	return &RelayHandler{svc: s, logger: l, maxBodyBytes: maxBodyBytes}
}

// Routes builds the route table wrapped in the middleware chain
func (h *RelayHandler) Routes(opts RouteOptions) http.Handler {
	healthPath := opts.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, h.HealthCheck)
	mux.HandleFunc("/api/hcs/submit-message", h.SubmitMessage)
	mux.HandleFunc("/api/hcs/transaction/{transactionId}", h.QueryTransaction)
	mux.HandleFunc("/api/hcs/topic/{topicId}/messages", h.QueryTopicMessages)
	if h.svc.EnqueueEnabled() {
		mux.HandleFunc("/api/hcs/enqueue-message", h.EnqueueMessage)
	}
	if opts.MetricsHandler != nil && opts.MetricsPath != "" {
		mux.Handle(opts.MetricsPath, opts.MetricsHandler)
	}
	mux.HandleFunc("/", h.NotFound)

	var handler http.Handler = mux
	handler = h.withRecovery(handler)
	handler = withSecurityHeaders(handler)
	if len(opts.AllowedOrigins) > 0 {
		handler = withCORS(opts.AllowedOrigins, handler)
	}
	return withRequestID(handler)
}

// HealthCheck handles GET /health requests
func (h *RelayHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.NotFound(w, r)
		return
	}

	resp := map[string]interface{}{
		"status":    "healthy",
		"network":   h.svc.Network(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	h.respondJSON(w, resp, http.StatusOK)
}

// submitPayload is the JSON body of submit and enqueue requests
type submitPayload struct {
	Message  *string         `json:"message"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// SubmitMessage handles POST /api/hcs/submit-message requests
func (h *RelayHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.NotFound(w, r)
		return
	}

	input, ok := h.decodeSubmission(w, r)
	if !ok {
		return
	}

	result, err := h.svc.SubmitMessage(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, result, http.StatusOK)
}

// EnqueueMessage handles POST /api/hcs/enqueue-message requests
func (h *RelayHandler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.NotFound(w, r)
		return
	}

	input, ok := h.decodeSubmission(w, r)
	if !ok {
		return
	}

	result, err := h.svc.EnqueueMessage(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, result, http.StatusAccepted)
}

// QueryTransaction handles GET /api/hcs/transaction/{transactionId} requests
func (h *RelayHandler) QueryTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.NotFound(w, r)
		return
	}

	status, err := h.svc.QueryTransaction(r.Context(), r.PathValue("transactionId"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, status, http.StatusOK)
}

// QueryTopicMessages handles GET /api/hcs/topic/{topicId}/messages requests
func (h *RelayHandler) QueryTopicMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.NotFound(w, r)
		return
	}

	// A missing or malformed limit falls back to the default
	limit := core.DefaultTopicMessagesLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = n
	}

	msgs, err := h.svc.QueryTopicMessages(r.Context(), r.PathValue("topicId"), limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, msgs, http.StatusOK)
}

// NotFound answers every unmatched route, and known paths requested with
// the wrong method
func (h *RelayHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, ErrorResult{Error: "Endpoint not found", Kind: string(core.KindNotFound)}, http.StatusNotFound)
}

// decodeSubmission parses and size-limits the request body. It writes the
// error response itself and returns ok=false on failure.
func (h *RelayHandler) decodeSubmission(w http.ResponseWriter, r *http.Request) (*core.SubmissionInput, bool) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		h.respondServiceError(w, r, core.NewValidationError("Content-Type must be application/json", nil))
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer r.Body.Close()

	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondJSON(w, ErrorResult{
				Error:   "Request body too large",
				Kind:    string(core.KindValidation),
				Details: fmt.Sprintf("limit is %d bytes", tooLarge.Limit),
			}, http.StatusRequestEntityTooLarge)
			return nil, false
		}
		h.logger.WithError(err).WithField("request_id", RequestIDFrom(r.Context())).Debug("Failed to parse JSON request")
		h.respondServiceError(w, r, core.NewValidationError("Invalid JSON body", err))
		return nil, false
	}

	input := &core.SubmissionInput{
		RequestID: RequestIDFrom(r.Context()),
		Metadata:  payload.Metadata,
	}
	if payload.Message != nil {
		input.Message = *payload.Message
	}
	return input, true
}

// respondServiceError maps the error taxonomy onto a status code
func (h *RelayHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var re *core.RelayError
	if !errors.As(err, &re) || re.Kind == core.KindInternal {
		h.logger.WithError(err).WithField("request_id", RequestIDFrom(r.Context())).Error("Request failed with internal error")
		h.respondInternal(w, r, err)
		return
	}

	h.respondJSON(w, ErrorResult{
		Error:   re.Label,
		Kind:    string(re.Kind),
		Details: re.Details(),
	}, re.Kind.HTTPStatus())
}

// respondInternal writes a generic 500 that only references the request id
func (h *RelayHandler) respondInternal(w http.ResponseWriter, r *http.Request, _ error) {
	h.respondJSON(w, ErrorResult{
		Error:   "Internal server error",
		Kind:    string(core.KindInternal),
		Details: fmt.Sprintf("request %s failed; see server logs", RequestIDFrom(r.Context())),
	}, http.StatusInternalServerError)
}

// respondJSON sends JSON response
func (h *RelayHandler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
		// Cannot send error to client at this point
	}
}
