// Package billing joins invoice facts onto the spine and derives invoiced and
// paid status as of a timestamp.
package billing

import (
	"fmt"
	"time"

	"github.com/snapline-io/snapline/pkg/types"
)

// Status is the derived billing state of one spine row.
type Status struct {
	Invoiced bool
	Paid     bool
}

// Result carries per-line billing status plus orphan findings.
type Result struct {
	Statuses map[types.LineKey]Status
	// Signals lists invoice facts whose key is absent from the spine. They are
	// excluded from the join and never block the cycle.
	Signals []types.Signal
}

// Reconcile derives invoiced/paid flags per spine row.
//
// A line is invoiced at asOf when some invoice fact has invoiced_ts <= asOf
// and no reversal for that invoice has reversed_ts <= asOf. Paid works the
// same way on paid_ts. Reversals are explicit facts: the flag never flips
// back without one, which keeps snapshots monotone and auditable.
func Reconcile(spine []types.SpineRow, invoices []types.InvoiceLineFact, reversals []types.InvoiceReversal, asOf time.Time) *Result {
	onSpine := make(map[types.LineKey]struct{}, len(spine))
	for _, row := range spine {
		onSpine[row.Key()] = struct{}{}
	}

	reversed := make(map[reversalKey]struct{}, len(reversals))
	for _, rev := range reversals {
		if rev.ReversedTs.After(asOf) {
			continue
		}
		reversed[reversalKey{rev.InvoiceID, rev.ScopePackageID, rev.FlocID}] = struct{}{}
	}

	res := &Result{Statuses: make(map[types.LineKey]Status, len(spine))}
	for _, row := range spine {
		res.Statuses[row.Key()] = Status{}
	}

	for _, inv := range invoices {
		k := types.LineKey{ScopePackageID: inv.ScopePackageID, FlocID: inv.FlocID}
		if _, ok := onSpine[k]; !ok {
			res.Signals = append(res.Signals, types.Signal{
				Kind:           types.SignalOrphanInvoiceLine,
				ScopePackageID: inv.ScopePackageID,
				FlocID:         inv.FlocID,
				InvoiceID:      inv.InvoiceID,
				Message:        fmt.Sprintf("invoice %s references a line not in awarded scope", inv.InvoiceID),
			})
			continue
		}
		if inv.InvoicedTs.After(asOf) {
			continue
		}
		if _, rv := reversed[reversalKey{inv.InvoiceID, inv.ScopePackageID, inv.FlocID}]; rv {
			continue
		}

		st := res.Statuses[k]
		st.Invoiced = true
		if inv.PaidTs != nil && !inv.PaidTs.After(asOf) {
			st.Paid = true
		}
		res.Statuses[k] = st
	}
	return res
}

type reversalKey struct {
	invoiceID      string
	scopePackageID string
	flocID         string
}
