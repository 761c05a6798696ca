package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/storage"
	"github.com/ledger-sync/internal/types"
)

// Stub services for handler tests

type stubResolver struct {
	invoice *service.ResolvedInvoice
	pool    *service.ResolvedPool
}

func (s *stubResolver) ResolveInvoice(ctx context.Context, id int64) *service.ResolvedInvoice {
	return s.invoice
}

func (s *stubResolver) ResolvePool(ctx context.Context, id int64) *service.ResolvedPool {
	return s.pool
}

type stubValidator struct {
	result *models.ValidationResult
	// postResult, when set, is returned from the second call onward so
	// tests can model state changing between validations.
	postResult *models.ValidationResult
	err        error
	lastIDs    []int64
	calls      int
}

func (s *stubValidator) current() *models.ValidationResult {
	s.calls++
	if s.calls > 1 && s.postResult != nil {
		return s.postResult
	}
	return s.result
}

func (s *stubValidator) Validate(ctx context.Context) (*models.ValidationResult, error) {
	s.lastIDs = nil
	return s.current(), s.err
}

func (s *stubValidator) ValidateIDs(ctx context.Context, ids []int64) (*models.ValidationResult, error) {
	s.lastIDs = ids
	return s.current(), s.err
}

type stubHealer struct {
	report *models.HealReport
	called bool
}

func (s *stubHealer) Heal(ctx context.Context, issues []models.ConsistencyIssue) *models.HealReport {
	s.called = true
	return s.report
}

type stubHealth struct {
	health *models.SystemHealth
}

func (s *stubHealth) Probe(ctx context.Context) *models.SystemHealth {
	return s.health
}

type stubPaymentStore struct {
	rows []*models.PaymentRow
	err  error
}

func (s *stubPaymentStore) Upsert(ctx context.Context, row *models.PaymentRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

type stubHistory struct {
	runs []storage.ValidationRunSummary
	err  error
}

func (s *stubHistory) ListValidationRuns(ctx context.Context, limit int) ([]storage.ValidationRunSummary, error) {
	return s.runs, s.err
}

type stubInvoiceCache struct {
	rows         []*models.InvoiceRow
	lastStatus   types.InvoiceStatus
	lastLimit    int
	descriptions map[int64]string
	queryErr     error
}

func (s *stubInvoiceCache) QueryByStatus(ctx context.Context, status types.InvoiceStatus, limit int) ([]*models.InvoiceRow, error) {
	s.lastStatus = status
	s.lastLimit = limit
	return s.rows, s.queryErr
}

func (s *stubInvoiceCache) SetDescription(ctx context.Context, tokenID int64, description string) error {
	if s.descriptions == nil {
		s.descriptions = make(map[int64]string)
	}
	for _, row := range s.rows {
		if row.TokenID == tokenID {
			s.descriptions[tokenID] = description
			return nil
		}
	}
	return &types.ServiceError{Code: "INVOICE_NOT_FOUND", Message: "invoice not found in cache"}
}

type stubFxRates struct {
	rates map[string]float64
}

func (s *stubFxRates) Get(ctx context.Context, base, quote string) (float64, error) {
	rate, ok := s.rates[base+"/"+quote]
	if !ok {
		return 0, service.ErrRateNotCached
	}
	return rate, nil
}

type serverOverrides struct {
	resolver  ResolverInterface
	validator ValidatorInterface
	healer    HealerInterface
	health    HealthInterface
	payments  PaymentStoreInterface
	history   HistoryInterface
	fxRates   FxRateSource
	invoices  InvoiceCacheInterface
}

func newTestServer(o serverOverrides) *Server {
	if o.resolver == nil {
		o.resolver = &stubResolver{
			invoice: &service.ResolvedInvoice{
				Invoice: &models.InvoiceView{TokenID: 1, Status: types.InvoicePending},
				Source:  types.SourceContract,
			},
			pool: &service.ResolvedPool{
				Pool:   &models.PoolView{PoolID: 1},
				Source: types.SourceContract,
			},
		}
	}
	if o.validator == nil {
		o.validator = &stubValidator{result: &models.ValidationResult{
			RunID: "run-1", HealthScore: 100, IsConsistent: true, CheckedAt: time.Now(),
		}}
	}
	if o.healer == nil {
		o.healer = &stubHealer{report: &models.HealReport{}}
	}
	if o.health == nil {
		o.health = &stubHealth{health: &models.SystemHealth{
			LedgerReachable: true, CacheReachable: true,
			ConsensusStatus: types.ConsensusHealthy, CheckedAt: time.Now(),
		}}
	}
	if o.payments == nil {
		o.payments = &stubPaymentStore{}
	}
	if o.invoices == nil {
		o.invoices = &stubInvoiceCache{}
	}

	cfg := &ServerConfig{Host: "127.0.0.1", Port: "0"}
	return NewServer(cfg, o.resolver, o.validator, o.healer, o.health, o.payments, o.history, o.fxRates, o.invoices)
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleGetInvoice(t *testing.T) {
	s := newTestServer(serverOverrides{})

	rec := doRequest(s, "GET", "/api/v1/invoices/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resolved service.ResolvedInvoice
	if err := json.Unmarshal(rec.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resolved.Source != types.SourceContract {
		t.Errorf("Source = %v, want contract", resolved.Source)
	}
	if resolved.Invoice.TokenID != 1 {
		t.Errorf("TokenID = %d, want 1", resolved.Invoice.TokenID)
	}
}

func TestHandleGetInvoiceRejectsBadID(t *testing.T) {
	s := newTestServer(serverOverrides{})

	for _, path := range []string{"/api/v1/invoices/0", "/api/v1/invoices/-3", "/api/v1/invoices/abc"} {
		rec := doRequest(s, "GET", path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, rec.Code)
		}
	}
}

func TestHandleGetPool(t *testing.T) {
	s := newTestServer(serverOverrides{})

	rec := doRequest(s, "GET", "/api/v1/pools/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleConsistencyCheck(t *testing.T) {
	validator := &stubValidator{result: &models.ValidationResult{
		RunID:       "run-7",
		HealthScore: 93,
		Issues: []models.ConsistencyIssue{
			{EntityID: 2, Kind: types.KindInvoice, Type: types.IssueStatusConflict, Severity: types.SeverityHigh, AutoHealable: true},
		},
	}}
	s := newTestServer(serverOverrides{validator: validator})

	rec := doRequest(s, "POST", "/api/v1/consistency/check", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result models.ValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.HealthScore != 93 || len(result.Issues) != 1 {
		t.Errorf("result = %+v, want the validator's result passed through", result)
	}
}

func TestHandleConsistencyCheckWithIDs(t *testing.T) {
	validator := &stubValidator{result: &models.ValidationResult{RunID: "run-8", HealthScore: 100, IsConsistent: true}}
	s := newTestServer(serverOverrides{validator: validator})

	rec := doRequest(s, "POST", "/api/v1/consistency/check", map[string]interface{}{"ids": []int64{3, 5}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(validator.lastIDs) != 2 {
		t.Errorf("validator received ids %v, want [3 5]", validator.lastIDs)
	}
}

func TestHandleConsistencyCheckRejectsBadIDs(t *testing.T) {
	s := newTestServer(serverOverrides{})

	rec := doRequest(s, "POST", "/api/v1/consistency/check", map[string]interface{}{"ids": []int64{0}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleConsistencyCheckValidatorError(t *testing.T) {
	validator := &stubValidator{err: errors.New("cache unreachable")}
	s := newTestServer(serverOverrides{validator: validator})

	rec := doRequest(s, "POST", "/api/v1/consistency/check", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleListInvoices(t *testing.T) {
	invoices := &stubInvoiceCache{rows: []*models.InvoiceRow{
		{TokenID: 1, Status: types.InvoiceFunded},
		{TokenID: 4, Status: types.InvoiceFunded},
	}}
	s := newTestServer(serverOverrides{invoices: invoices})

	rec := doRequest(s, "GET", "/api/v1/invoices?status=funded&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if invoices.lastStatus != types.InvoiceFunded || invoices.lastLimit != 10 {
		t.Errorf("query = (%v, %d), want (FUNDED, 10)", invoices.lastStatus, invoices.lastLimit)
	}

	var resp struct {
		Invoices []*models.InvoiceRow `json:"invoices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Invoices) != 2 {
		t.Errorf("invoices = %d, want 2", len(resp.Invoices))
	}
}

func TestHandleListInvoicesValidation(t *testing.T) {
	s := newTestServer(serverOverrides{})

	for _, path := range []string{
		"/api/v1/invoices",
		"/api/v1/invoices?status=NOT_A_STATUS",
		"/api/v1/invoices?status=FUNDED&limit=0",
	} {
		rec := doRequest(s, "GET", path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestHandleSetInvoiceDescription(t *testing.T) {
	invoices := &stubInvoiceCache{rows: []*models.InvoiceRow{{TokenID: 3}}}
	s := newTestServer(serverOverrides{invoices: invoices})

	body := map[string]interface{}{"description": "container shipment, dock 4"}
	rec := doRequest(s, "PUT", "/api/v1/invoices/3/description", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if invoices.descriptions[3] != "container shipment, dock 4" {
		t.Errorf("stored description = %q", invoices.descriptions[3])
	}
}

func TestHandleSetInvoiceDescriptionNotFound(t *testing.T) {
	s := newTestServer(serverOverrides{invoices: &stubInvoiceCache{}})

	body := map[string]interface{}{"description": "anything"}
	rec := doRequest(s, "PUT", "/api/v1/invoices/42/description", body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeNotFound)
	}
}

func TestHandleConsistencyHeal(t *testing.T) {
	healer := &stubHealer{report: &models.HealReport{Healed: 2}}
	validator := &stubValidator{result: &models.ValidationResult{
		RunID:       "run-9",
		HealthScore: 86,
		Issues: []models.ConsistencyIssue{
			{EntityID: 1, AutoHealable: true}, {EntityID: 2, AutoHealable: true},
		},
	}}
	s := newTestServer(serverOverrides{validator: validator, healer: healer})

	rec := doRequest(s, "POST", "/api/v1/consistency/heal", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !healer.called {
		t.Error("healer was not invoked")
	}

	var resp HealResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Report.Healed != 2 || resp.IssuesFound != 2 {
		t.Errorf("response = %+v, want 2 healed of 2 found", resp)
	}
}

func TestHandleConsistencyHealRevalidates(t *testing.T) {
	validator := &stubValidator{
		result: &models.ValidationResult{
			RunID:       "run-9",
			HealthScore: 85,
			Issues: []models.ConsistencyIssue{
				{EntityID: 1, AutoHealable: true},
			},
		},
		postResult: &models.ValidationResult{
			RunID:        "run-10",
			HealthScore:  100,
			IsConsistent: true,
		},
	}
	s := newTestServer(serverOverrides{
		validator: validator,
		healer:    &stubHealer{report: &models.HealReport{Healed: 1}},
	})

	rec := doRequest(s, "POST", "/api/v1/consistency/heal", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if validator.calls != 2 {
		t.Errorf("validator calls = %d, a heal must validate before and after", validator.calls)
	}

	var resp HealResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ScoreBefore != 85 {
		t.Errorf("ScoreBefore = %d, want 85", resp.ScoreBefore)
	}
	if resp.PostHeal == nil || resp.PostHeal.HealthScore != 100 || !resp.PostHeal.IsConsistent {
		t.Errorf("PostHeal = %+v, want the post-heal validation result", resp.PostHeal)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(serverOverrides{})

	rec := doRequest(s, "GET", "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var health models.SystemHealth
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.ConsensusStatus != types.ConsensusHealthy {
		t.Errorf("ConsensusStatus = %v, want healthy", health.ConsensusStatus)
	}
}

func TestHandleHealthCriticalReturns503(t *testing.T) {
	s := newTestServer(serverOverrides{health: &stubHealth{health: &models.SystemHealth{
		ConsensusStatus: types.ConsensusCritical,
	}}})

	rec := doRequest(s, "GET", "/api/v1/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func validPayment() map[string]interface{} {
	return map[string]interface{}{
		"invoiceId": 7,
		"payer":     "0xbbbb567890abcdef1234567890abcdef12345678",
		"amount":    "125000",
		"currency":  "USD",
		"reference": "wire-2025-031",
	}
}

func TestHandleSubmitPayment(t *testing.T) {
	payments := &stubPaymentStore{}
	s := newTestServer(serverOverrides{payments: payments})

	rec := doRequest(s, "POST", "/api/v1/payments", validPayment())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(payments.rows) != 1 || payments.rows[0].InvoiceID != 7 {
		t.Errorf("stored payments = %+v, want one for invoice 7", payments.rows)
	}

	var resp PaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none when healthy", resp.Warnings)
	}
}

func TestHandleSubmitPaymentRejectedWhenCritical(t *testing.T) {
	payments := &stubPaymentStore{}
	s := newTestServer(serverOverrides{
		payments: payments,
		health:   &stubHealth{health: &models.SystemHealth{ConsensusStatus: types.ConsensusCritical}},
	})

	rec := doRequest(s, "POST", "/api/v1/payments", validPayment())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header must be set")
	}
	if len(payments.rows) != 0 {
		t.Error("no payment may be recorded while critical")
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != ErrCodeConsensusCritical {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeConsensusCritical)
	}
}

func TestHandleSubmitPaymentDegradedWarns(t *testing.T) {
	s := newTestServer(serverOverrides{
		health: &stubHealth{health: &models.SystemHealth{ConsensusStatus: types.ConsensusDegraded}},
	})

	rec := doRequest(s, "POST", "/api/v1/payments", validPayment())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var resp PaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Warnings) != 1 {
		t.Errorf("Warnings = %v, want a degradation warning", resp.Warnings)
	}
}

func TestHandleSubmitPaymentForeignCurrencyStampsRate(t *testing.T) {
	payments := &stubPaymentStore{}
	s := newTestServer(serverOverrides{
		payments: payments,
		fxRates:  &stubFxRates{rates: map[string]float64{"EUR/USD": 1.08}},
	})

	body := validPayment()
	body["currency"] = "EUR"
	rec := doRequest(s, "POST", "/api/v1/payments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(payments.rows) != 1 {
		t.Fatalf("stored payments = %d, want 1", len(payments.rows))
	}
	if payments.rows[0].FxRate == nil || *payments.rows[0].FxRate != "1.08" {
		t.Errorf("FxRate = %v, want 1.08", payments.rows[0].FxRate)
	}
}

func TestHandleSubmitPaymentUncachedRateWarns(t *testing.T) {
	payments := &stubPaymentStore{}
	s := newTestServer(serverOverrides{
		payments: payments,
		fxRates:  &stubFxRates{},
	})

	body := validPayment()
	body["currency"] = "GBP"
	rec := doRequest(s, "POST", "/api/v1/payments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if payments.rows[0].FxRate != nil {
		t.Errorf("FxRate = %v, want nil for an uncached pair", *payments.rows[0].FxRate)
	}

	var resp PaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Warnings) != 1 {
		t.Errorf("Warnings = %v, want an fx warning", resp.Warnings)
	}
}

func TestHandleSubmitPaymentValidation(t *testing.T) {
	s := newTestServer(serverOverrides{})

	bad := validPayment()
	delete(bad, "payer")
	rec := doRequest(s, "POST", "/api/v1/payments", bad)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleConsistencyHistory(t *testing.T) {
	history := &stubHistory{runs: []storage.ValidationRunSummary{
		{RunID: "run-1", HealthScore: 100, Consistent: true},
	}}
	s := newTestServer(serverOverrides{history: history})

	rec := doRequest(s, "GET", "/api/v1/consistency/history?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Runs []storage.ValidationRunSummary `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].RunID != "run-1" {
		t.Errorf("runs = %+v, want the stub's run", resp.Runs)
	}
}

func TestHandleConsistencyHistoryUnconfigured(t *testing.T) {
	s := newTestServer(serverOverrides{})

	rec := doRequest(s, "GET", "/api/v1/consistency/history", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
