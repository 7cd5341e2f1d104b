package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapline-io/snapline/pkg/types"
)

var asOf = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func spineRow(pkg, floc string) types.SpineRow {
	return types.SpineRow{ScopePackageID: pkg, FlocID: floc}
}

func invoice(id, pkg, floc string, invoiced time.Time, paid *time.Time) types.InvoiceLineFact {
	return types.InvoiceLineFact{InvoiceID: id, ScopePackageID: pkg, FlocID: floc, InvoicedTs: invoiced, PaidTs: paid}
}

func TestReconcile_InvoicedAndPaidFlags(t *testing.T) {
	spine := []types.SpineRow{spineRow("P1", "F1"), spineRow("P1", "F2"), spineRow("P1", "F3")}
	paidAt := asOf.Add(-time.Hour)
	invoices := []types.InvoiceLineFact{
		invoice("INV-1", "P1", "F1", asOf.Add(-48*time.Hour), &paidAt),
		invoice("INV-2", "P1", "F2", asOf.Add(-24*time.Hour), nil),
	}

	res := Reconcile(spine, invoices, nil, asOf)

	f1 := res.Statuses[types.LineKey{ScopePackageID: "P1", FlocID: "F1"}]
	assert.True(t, f1.Invoiced)
	assert.True(t, f1.Paid)

	f2 := res.Statuses[types.LineKey{ScopePackageID: "P1", FlocID: "F2"}]
	assert.True(t, f2.Invoiced)
	assert.False(t, f2.Paid)

	f3 := res.Statuses[types.LineKey{ScopePackageID: "P1", FlocID: "F3"}]
	assert.False(t, f3.Invoiced)
	assert.False(t, f3.Paid)
}

func TestReconcile_FutureInvoiceIgnored(t *testing.T) {
	spine := []types.SpineRow{spineRow("P1", "F1")}
	invoices := []types.InvoiceLineFact{invoice("INV-1", "P1", "F1", asOf.Add(time.Hour), nil)}

	res := Reconcile(spine, invoices, nil, asOf)
	assert.False(t, res.Statuses[types.LineKey{ScopePackageID: "P1", FlocID: "F1"}].Invoiced)
}

func TestReconcile_FuturePaidTsIgnored(t *testing.T) {
	spine := []types.SpineRow{spineRow("P1", "F1")}
	paidAt := asOf.Add(time.Hour)
	invoices := []types.InvoiceLineFact{invoice("INV-1", "P1", "F1", asOf.Add(-time.Hour), &paidAt)}

	res := Reconcile(spine, invoices, nil, asOf)
	st := res.Statuses[types.LineKey{ScopePackageID: "P1", FlocID: "F1"}]
	assert.True(t, st.Invoiced)
	assert.False(t, st.Paid)
}

func TestReconcile_OrphanInvoiceExcludedAndSignaled(t *testing.T) {
	spine := []types.SpineRow{spineRow("P1", "F1")}
	invoices := []types.InvoiceLineFact{
		invoice("INV-1", "P1", "F1", asOf.Add(-time.Hour), nil),
		invoice("INV-9", "P9", "F9", asOf.Add(-time.Hour), nil),
	}

	res := Reconcile(spine, invoices, nil, asOf)

	require.Len(t, res.Signals, 1)
	sig := res.Signals[0]
	assert.Equal(t, types.SignalOrphanInvoiceLine, sig.Kind)
	assert.Equal(t, "INV-9", sig.InvoiceID)

	_, present := res.Statuses[types.LineKey{ScopePackageID: "P9", FlocID: "F9"}]
	assert.False(t, present, "orphan must not enter the join")
}

func TestReconcile_ReversalClearsInvoiced(t *testing.T) {
	spine := []types.SpineRow{spineRow("P1", "F1")}
	invoices := []types.InvoiceLineFact{invoice("INV-1", "P1", "F1", asOf.Add(-48*time.Hour), nil)}
	reversals := []types.InvoiceReversal{{
		InvoiceID:      "INV-1",
		ScopePackageID: "P1",
		FlocID:         "F1",
		ReversedTs:     asOf.Add(-time.Hour),
		Reason:         "billing dispute",
	}}

	res := Reconcile(spine, invoices, reversals, asOf)
	assert.False(t, res.Statuses[types.LineKey{ScopePackageID: "P1", FlocID: "F1"}].Invoiced)
}

func TestReconcile_FutureReversalDoesNotApply(t *testing.T) {
	// A reversal after asOf has not happened yet from the snapshot's point of
	// view: the line is still invoiced.
	spine := []types.SpineRow{spineRow("P1", "F1")}
	invoices := []types.InvoiceLineFact{invoice("INV-1", "P1", "F1", asOf.Add(-48*time.Hour), nil)}
	reversals := []types.InvoiceReversal{{
		InvoiceID:      "INV-1",
		ScopePackageID: "P1",
		FlocID:         "F1",
		ReversedTs:     asOf.Add(time.Hour),
	}}

	res := Reconcile(spine, invoices, reversals, asOf)
	assert.True(t, res.Statuses[types.LineKey{ScopePackageID: "P1", FlocID: "F1"}].Invoiced)
}
