// Package ledger provides typed read access to the trade-finance contract.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

// ContractBackend is the subset of the RPC client the reader needs.
// *ethclient.Client satisfies it; tests substitute a fake.
type ContractBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader provides side-effect-free reads of ledger entities by id.
// It never retries: retry policy belongs to the caller, since the backfill
// walker and the resolver need different policies.
type Reader struct {
	backend     ContractBackend
	contract    common.Address
	abi         abi.ABI
	callTimeout time.Duration
}

// NewReader creates a reader bound to one deployed contract.
// callTimeout bounds every individual RPC call so a hung endpoint cannot
// block a walker pass; zero disables the bound.
func NewReader(backend ContractBackend, contractAddress string, callTimeout time.Duration) (*Reader, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address: %s", contractAddress)
	}

	parsed, err := abi.JSON(strings.NewReader(tradeFinanceABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	return &Reader{
		backend:     backend,
		contract:    common.HexToAddress(contractAddress),
		abi:         parsed,
		callTimeout: callTimeout,
	}, nil
}

// ContractAddress returns the bound contract address in lowercase hex.
func (r *Reader) ContractAddress() string {
	return strings.ToLower(r.contract.Hex())
}

// call packs, executes and unpacks one view-function call.
func (r *Reader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %v: %w", method, err, ErrUnavailable)
	}

	vals, err := r.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return vals, nil
}

// GetInvoice reads one invoice by token id.
// Returns ErrNotFound when the sentinel rule matches and ErrUnavailable on
// transport failure.
func (r *Reader) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	vals, err := r.call(ctx, "getInvoice", big.NewInt(id))
	if err != nil {
		return nil, err
	}

	inv := &models.Invoice{
		TokenID:         asBig(vals[0]).Int64(),
		Exporter:        asAddressHex(vals[1]),
		ExporterCompany: vals[2].(string),
		ImporterCompany: vals[3].(string),
		ImporterEmail:   vals[4].(string),
		ShippingDate:    unixOrZero(asBig(vals[5])),
		ShippingAmount:  asBig(vals[6]),
		LoanAmount:      asBig(vals[7]),
		AmountInvested:  asBig(vals[8]),
		AmountWithdrawn: asBig(vals[9]),
		Status:          types.InvoiceStatusFromCode(vals[10].(uint8)),
		IPFSHash:        vals[12].(string),
		CreatedAt:       unixOrZero(asBig(vals[13])),
	}
	if poolID := asBig(vals[11]).Int64(); poolID != 0 {
		inv.PoolID = &poolID
	}

	if !InvoiceExists(inv) {
		return nil, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	return inv, nil
}

// GetPool reads one pool by id.
func (r *Reader) GetPool(ctx context.Context, id int64) (*models.Pool, error) {
	vals, err := r.call(ctx, "getPool", big.NewInt(id))
	if err != nil {
		return nil, err
	}

	rawIDs := vals[10].([]*big.Int)
	invoiceIDs := make([]int64, 0, len(rawIDs))
	for _, raw := range rawIDs {
		invoiceIDs = append(invoiceIDs, raw.Int64())
	}

	pool := &models.Pool{
		PoolID:              asBig(vals[0]).Int64(),
		Name:                vals[1].(string),
		StartDate:           unixOrZero(asBig(vals[2])),
		EndDate:             unixOrZero(asBig(vals[3])),
		TotalLoanAmount:     asBig(vals[4]),
		TotalShippingAmount: asBig(vals[5]),
		AmountInvested:      asBig(vals[6]),
		AmountDistributed:   asBig(vals[7]),
		FeePaid:             asBig(vals[8]),
		Status:              types.PoolStatusFromCode(vals[9].(uint8)),
		InvoiceIDs:          invoiceIDs,
		CreatedAt:           unixOrZero(asBig(vals[11])),
	}

	if !PoolExists(pool) {
		return nil, fmt.Errorf("pool %d: %w", id, ErrNotFound)
	}
	return pool, nil
}

// GetPoolInvestors reads the investor list of a pool. The list is
// authoritative and bounded, so no sentinel applies here.
func (r *Reader) GetPoolInvestors(ctx context.Context, poolID int64) ([]string, error) {
	vals, err := r.call(ctx, "getPoolInvestors", big.NewInt(poolID))
	if err != nil {
		return nil, err
	}

	raw := vals[0].([]common.Address)
	investors := make([]string, 0, len(raw))
	for _, addr := range raw {
		investors = append(investors, strings.ToLower(addr.Hex()))
	}
	return investors, nil
}

// GetInvestment reads one investor's position in a pool.
func (r *Reader) GetInvestment(ctx context.Context, poolID int64, investor string) (*models.Investment, error) {
	if !common.IsHexAddress(investor) {
		return nil, fmt.Errorf("invalid investor address: %s", investor)
	}

	vals, err := r.call(ctx, "getInvestment", big.NewInt(poolID), common.HexToAddress(investor))
	if err != nil {
		return nil, err
	}

	return &models.Investment{
		PoolID:     poolID,
		Investor:   asAddressHex(vals[0]),
		Amount:     asBig(vals[1]),
		Percentage: asBig(vals[2]),
		Timestamp:  unixOrZero(asBig(vals[3])),
		Claimed:    vals[4].(bool),
	}, nil
}

func asBig(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok && b != nil {
		return b
	}
	return new(big.Int)
}

func asAddressHex(v interface{}) string {
	return strings.ToLower(v.(common.Address).Hex())
}

// unixOrZero maps a zero on-chain timestamp to the zero time so sentinel
// predicates can test IsZero directly.
func unixOrZero(sec *big.Int) time.Time {
	if sec.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(sec.Int64(), 0).UTC()
}
