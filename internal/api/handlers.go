package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

// handleGetInvoice handles GET /api/v1/invoices/{id}.
// Resolution never fails: absence or store trouble is conveyed through the
// source tag and warnings on the payload, not through error statuses.
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEntityID(w, r)
	if !ok {
		return
	}

	resolved := s.resolver.ResolveInvoice(r.Context(), id)
	respondJSON(w, http.StatusOK, resolved)
}

// handleListInvoices handles GET /api/v1/invoices?status=FUNDED&limit=50.
// Listing reads the cache directly: enumerating the ledger per request would
// hammer a rate-limited endpoint for data the walker already copied.
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "status query parameter is required", nil)
		return
	}
	status := types.InvoiceStatus(strings.ToUpper(raw))
	if !status.Valid() {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, fmt.Sprintf("unknown invoice status %q", raw), nil)
		return
	}

	limit := 50
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.invoices.QueryByStatus(r.Context(), status, limit)
	if err != nil {
		s.logger.WithError(err).Error("Invoice listing failed")
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Invoice listing is unavailable", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"invoices": rows})
}

// handleSetInvoiceDescription handles PUT /api/v1/invoices/{id}/description.
// Description is cache-only metadata and has no ledger counterpart, so the
// write goes straight to the cache row.
func (s *Server) handleSetInvoiceDescription(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEntityID(w, r)
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Description == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "description is required", nil)
		return
	}

	if err := s.invoices.SetDescription(r.Context(), id, req.Description); err != nil {
		var svcErr *types.ServiceError
		if errors.As(err, &svcErr) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, svcErr.Message, nil)
			return
		}
		s.logger.WithError(err).WithField("tokenId", id).Error("Description write failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Description could not be saved", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokenId":     id,
		"description": req.Description,
	})
}

// handleGetPool handles GET /api/v1/pools/{id}.
func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEntityID(w, r)
	if !ok {
		return
	}

	resolved := s.resolver.ResolvePool(r.Context(), id)
	respondJSON(w, http.StatusOK, resolved)
}

// handleConsistencyCheck handles POST /api/v1/consistency/check.
// An empty body validates everything; {"ids": [...]} restricts the run.
func (s *Server) handleConsistencyCheck(w http.ResponseWriter, r *http.Request) {
	ids, ok := parseOptionalIDs(w, r)
	if !ok {
		return
	}

	var result *models.ValidationResult
	var err error
	if len(ids) > 0 {
		result, err = s.validator.ValidateIDs(r.Context(), ids)
	} else {
		result, err = s.validator.Validate(r.Context())
	}
	if err != nil {
		s.logger.WithError(err).Error("Consistency check failed")
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Consistency check could not be completed", nil)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// HealResponse is the combined outcome of a validate-heal-revalidate pass.
type HealResponse struct {
	RunID       string                   `json:"runId"`
	IssuesFound int                      `json:"issuesFound"`
	ScoreBefore int                      `json:"scoreBefore"`
	Report      *models.HealReport       `json:"report"`
	PostHeal    *models.ValidationResult `json:"postHeal,omitempty"`
	CheckedAt   time.Time                `json:"checkedAt"`
}

// handleConsistencyHeal handles POST /api/v1/consistency/heal. It runs a
// fresh validation, repairs every auto-healable finding, then validates the
// same scope again so the caller sees the post-heal state.
func (s *Server) handleConsistencyHeal(w http.ResponseWriter, r *http.Request) {
	ids, ok := parseOptionalIDs(w, r)
	if !ok {
		return
	}

	validate := func() (*models.ValidationResult, error) {
		if len(ids) > 0 {
			return s.validator.ValidateIDs(r.Context(), ids)
		}
		return s.validator.Validate(r.Context())
	}

	result, err := validate()
	if err != nil {
		s.logger.WithError(err).Error("Pre-heal validation failed")
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Validation could not be completed", nil)
		return
	}

	report := s.healer.Heal(r.Context(), result.Issues)

	resp := &HealResponse{
		RunID:       result.RunID,
		IssuesFound: len(result.Issues),
		ScoreBefore: result.HealthScore,
		Report:      report,
		CheckedAt:   result.CheckedAt,
	}

	post, err := validate()
	if err != nil {
		s.logger.WithError(err).Error("Post-heal validation failed")
	} else {
		resp.PostHeal = post
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleConsistencyHistory handles GET /api/v1/consistency/history.
func (s *Server) handleConsistencyHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run history is not configured", nil)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	if limit > 100 {
		limit = 100
	}

	runs, err := s.history.ListValidationRuns(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list validation runs")
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run history is unavailable", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleHealth handles GET /api/v1/health. A critical consensus state is
// reported as 503 so load balancers can act on it; the body is identical.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health.Probe(r.Context())

	status := http.StatusOK
	if health.ConsensusStatus == types.ConsensusCritical {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, health)
}

// PaymentResponse is returned on accepted payment submissions.
type PaymentResponse struct {
	Payment  *models.PaymentRow `json:"payment"`
	Warnings []string           `json:"warnings,omitempty"`
}

// handleSubmitPayment handles POST /api/v1/payments. Writes are gated on
// consensus health: a critical state rejects with a retry hint, a degraded
// state accepts but says so.
func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceID int64  `json:"invoiceId"`
		Payer     string `json:"payer"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
		Reference string `json:"reference"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.InvoiceID <= 0 || req.Payer == "" || req.Amount == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invoiceId, payer and amount are required", nil)
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	health := s.health.Probe(r.Context())
	if health.ConsensusStatus == types.ConsensusCritical {
		w.Header().Set("Retry-After", "30")
		respondError(w, http.StatusServiceUnavailable, ErrCodeConsensusCritical,
			"Write operations are suspended while data stores are unreachable",
			map[string]interface{}{"retryAfterSeconds": 30})
		return
	}

	row := &models.PaymentRow{
		InvoiceID:  req.InvoiceID,
		Payer:      req.Payer,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Reference:  req.Reference,
		ReceivedAt: time.Now().UTC(),
	}

	var fxWarning string
	if req.Currency != "USD" && s.fxRates != nil {
		rate, err := s.fxRates.Get(r.Context(), req.Currency, "USD")
		if err != nil {
			fxWarning = fmt.Sprintf("No cached FX rate for %s/USD; payment stored without a conversion rate", req.Currency)
		} else {
			formatted := strconv.FormatFloat(rate, 'f', -1, 64)
			row.FxRate = &formatted
		}
	}

	if err := s.payments.Upsert(r.Context(), row); err != nil {
		s.logger.WithError(err).WithField("invoiceId", req.InvoiceID).Error("Payment write failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Payment could not be recorded", nil)
		return
	}

	resp := &PaymentResponse{Payment: row}
	if health.ConsensusStatus == types.ConsensusDegraded {
		resp.Warnings = append(resp.Warnings, "Data stores are degraded; payment accepted but verification may lag")
	}
	if fxWarning != "" {
		resp.Warnings = append(resp.Warnings, fxWarning)
	}
	respondJSON(w, http.StatusCreated, resp)
}

// parseEntityID extracts and validates the {id} path variable.
func parseEntityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

// parseOptionalIDs reads an optional {"ids": [...]} request body.
func parseOptionalIDs(w http.ResponseWriter, r *http.Request) ([]int64, bool) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	err := parseJSONBody(r, &req)
	if err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return nil, false
	}
	for _, id := range req.IDs {
		if id < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "ids must be positive integers", nil)
			return nil, false
		}
	}
	return req.IDs, true
}
