package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ledger-sync/internal/ledger"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

const fakeContract = "0x1234567890abcdef1234567890abcdef12345678"

// fakeLedger is an in-memory LedgerReader. Unallocated ids answer with the
// sentinel error, matching the real reader's contract.
type fakeLedger struct {
	mu          sync.Mutex
	invoices    map[int64]*models.Invoice
	pools       map[int64]*models.Pool
	investors   map[int64][]string
	investments map[string]*models.Investment
	// failures[id] makes the next n reads of that invoice id fail as
	// unavailable before succeeding, to exercise retry paths.
	failures map[int64]int
	// investorFailures does the same for individual investment reads,
	// keyed "poolID:investor".
	investorFailures map[string]int
	down             bool
	calls            int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		invoices:         make(map[int64]*models.Invoice),
		pools:            make(map[int64]*models.Pool),
		investors:        make(map[int64][]string),
		investments:      make(map[string]*models.Investment),
		failures:         make(map[int64]int),
		investorFailures: make(map[string]int),
	}
}

func (f *fakeLedger) addInvoice(id int64, status types.InvoiceStatus, invested int64) *models.Invoice {
	inv := &models.Invoice{
		TokenID:         id,
		Exporter:        "0xaaaa567890abcdef1234567890abcdef12345678",
		ExporterCompany: "Acme Exports",
		ImporterCompany: "Beta Imports",
		ImporterEmail:   "ops@beta.example",
		ShippingDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		ShippingAmount:  big.NewInt(500000),
		LoanAmount:      big.NewInt(400000),
		AmountInvested:  big.NewInt(invested),
		AmountWithdrawn: big.NewInt(0),
		Status:          status,
		IPFSHash:        "QmTestHash",
		CreatedAt:       time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	f.invoices[id] = inv
	return inv
}

func (f *fakeLedger) addPool(id int64, invoiceIDs []int64) *models.Pool {
	pool := &models.Pool{
		PoolID:              id,
		Name:                fmt.Sprintf("Pool %d", id),
		StartDate:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:             time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		TotalLoanAmount:     big.NewInt(900000),
		TotalShippingAmount: big.NewInt(1100000),
		AmountInvested:      big.NewInt(450000),
		AmountDistributed:   big.NewInt(0),
		FeePaid:             big.NewInt(1200),
		Status:              types.PoolFundraising,
		InvoiceIDs:          invoiceIDs,
		CreatedAt:           time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC),
	}
	f.pools[id] = pool
	return pool
}

func (f *fakeLedger) addInvestment(poolID int64, investor string, amount int64) {
	f.investors[poolID] = append(f.investors[poolID], investor)
	f.investments[fmt.Sprintf("%d:%s", poolID, investor)] = &models.Investment{
		PoolID:     poolID,
		Investor:   investor,
		Amount:     big.NewInt(amount),
		Percentage: big.NewInt(1000),
		Timestamp:  time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		Claimed:    false,
	}
}

func (f *fakeLedger) gate(id int64) error {
	if f.down {
		return fmt.Errorf("rpc down: %w", ledger.ErrUnavailable)
	}
	if f.failures[id] > 0 {
		f.failures[id]--
		return fmt.Errorf("transient failure: %w", ledger.ErrUnavailable)
	}
	return nil
}

func (f *fakeLedger) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.gate(id); err != nil {
		return nil, err
	}
	inv, ok := f.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, ledger.ErrNotFound)
	}
	return inv, nil
}

func (f *fakeLedger) GetPool(ctx context.Context, id int64) (*models.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.gate(id); err != nil {
		return nil, err
	}
	pool, ok := f.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %d: %w", id, ledger.ErrNotFound)
	}
	return pool, nil
}

func (f *fakeLedger) GetPoolInvestors(ctx context.Context, poolID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, fmt.Errorf("rpc down: %w", ledger.ErrUnavailable)
	}
	return f.investors[poolID], nil
}

func (f *fakeLedger) GetInvestment(ctx context.Context, poolID int64, investor string) (*models.Investment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, fmt.Errorf("rpc down: %w", ledger.ErrUnavailable)
	}
	key := fmt.Sprintf("%d:%s", poolID, investor)
	if f.investorFailures[key] > 0 {
		f.investorFailures[key]--
		return nil, fmt.Errorf("transient failure: %w", ledger.ErrUnavailable)
	}
	inv, ok := f.investments[key]
	if !ok {
		return nil, fmt.Errorf("investment %d/%s: %w", poolID, investor, ledger.ErrNotFound)
	}
	return inv, nil
}

func (f *fakeLedger) ContractAddress() string {
	return fakeContract
}

type fakeInvoiceStore struct {
	mu        sync.Mutex
	rows      map[int64]*models.InvoiceRow
	upserts   int
	upsertErr error
	getErr    error
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{rows: make(map[int64]*models.InvoiceRow)}
}

func (s *fakeInvoiceStore) Upsert(ctx context.Context, row *models.InvoiceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	if existing, ok := s.rows[row.TokenID]; ok {
		// ON CONFLICT semantics: cache-only metadata survives a rewrite.
		copied := *row
		copied.Description = existing.Description
		if copied.TxHash == nil {
			copied.TxHash = existing.TxHash
		}
		s.rows[row.TokenID] = &copied
		return nil
	}
	copied := *row
	s.rows[row.TokenID] = &copied
	return nil
}

func (s *fakeInvoiceStore) Get(ctx context.Context, tokenID int64) (*models.InvoiceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	row, ok := s.rows[tokenID]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

// SetDescription mirrors the repository's dedicated cache-only metadata
// write: an UPDATE of the description column, never part of Upsert.
func (s *fakeInvoiceStore) SetDescription(ctx context.Context, tokenID int64, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[tokenID]
	if !ok {
		return &types.ServiceError{
			Code:    "INVOICE_NOT_FOUND",
			Message: fmt.Sprintf("invoice %d not found in cache", tokenID),
		}
	}
	row.Description = &description
	return nil
}

func (s *fakeInvoiceStore) ListIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	ids := make([]int64, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type fakePoolStore struct {
	mu   sync.Mutex
	rows map[int64]*models.PoolRow
}

func newFakePoolStore() *fakePoolStore {
	return &fakePoolStore{rows: make(map[int64]*models.PoolRow)}
}

func (s *fakePoolStore) Upsert(ctx context.Context, row *models.PoolRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *row
	s.rows[row.PoolID] = &copied
	return nil
}

func (s *fakePoolStore) Get(ctx context.Context, poolID int64) (*models.PoolRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[poolID]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

type fakeInvestmentStore struct {
	mu   sync.Mutex
	rows map[string]*models.InvestmentRow
}

func newFakeInvestmentStore() *fakeInvestmentStore {
	return &fakeInvestmentStore{rows: make(map[string]*models.InvestmentRow)}
}

func (s *fakeInvestmentStore) Upsert(ctx context.Context, row *models.InvestmentRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *row
	s.rows[fmt.Sprintf("%d:%s", row.PoolID, row.Investor)] = &copied
	return nil
}

type fakeSkipStore struct {
	mu       sync.Mutex
	recorded []models.SkippedID
	resolved []int64
}

func (s *fakeSkipStore) Record(ctx context.Context, kind types.EntityKind, entityID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by natural key, like the real table.
	for i, skip := range s.recorded {
		if skip.Kind == kind && skip.EntityID == entityID {
			s.recorded[i].Reason = reason
			s.recorded[i].SkippedAt = time.Now()
			return nil
		}
	}
	s.recorded = append(s.recorded, models.SkippedID{
		Kind: kind, EntityID: entityID, Reason: reason, SkippedAt: time.Now(),
	})
	return nil
}

func (s *fakeSkipStore) ListPending(ctx context.Context, kind types.EntityKind) ([]models.SkippedID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []models.SkippedID
	for _, skip := range s.recorded {
		if skip.Kind == kind {
			pending = append(pending, skip)
		}
	}
	return pending, nil
}

func (s *fakeSkipStore) Resolve(ctx context.Context, kind types.EntityKind, entityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, skip := range s.recorded {
		if skip.Kind == kind && skip.EntityID == entityID {
			s.recorded = append(s.recorded[:i], s.recorded[i+1:]...)
			break
		}
	}
	s.resolved = append(s.resolved, entityID)
	return nil
}

type fakeAudit struct {
	mu          sync.Mutex
	validations []*models.ValidationResult
	backfills   []*models.WalkReport
}

func (a *fakeAudit) RecordValidationRun(ctx context.Context, result *models.ValidationResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validations = append(a.validations, result)
	return nil
}

func (a *fakeAudit) RecordBackfillRun(ctx context.Context, report *models.WalkReport, startedAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.backfills = append(a.backfills, report)
	return nil
}

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(ctx context.Context) error {
	return p.err
}

// fastWalkerConfig keeps retry delays negligible in tests.
func fastWalkerConfig() WalkerConfig {
	return WalkerConfig{
		MaxIterations: 100,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}
