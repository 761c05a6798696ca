package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledger-sync/internal/models"
)

// The contract has no explicit exists flag; non-existence is signalled by a
// designated field holding its zero value. These predicates are the only
// place that convention lives.

var zeroAddressHex = strings.ToLower(common.Address{}.Hex())

// InvoiceExists reports whether a decoded invoice is an allocated entity.
// An all-zero exporter address marks an unallocated token id.
func InvoiceExists(inv *models.Invoice) bool {
	return inv.Exporter != "" && inv.Exporter != zeroAddressHex
}

// PoolExists reports whether a decoded pool is an allocated entity.
// A zero creation timestamp marks an unallocated pool id.
func PoolExists(p *models.Pool) bool {
	return !p.CreatedAt.IsZero()
}
