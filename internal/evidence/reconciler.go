// Package evidence joins conformed evidence aggregates onto the spine.
package evidence

import (
	"fmt"
	"time"

	"github.com/snapline-io/snapline/pkg/types"
)

// DefaultMinImages is the image-count threshold below which an IMAGES or
// DELIVERIES aggregate does not count as received.
const DefaultMinImages = 8

// Result carries the joined evidence per spine row plus non-fatal findings.
type Result struct {
	// Statuses holds one entry per spine-row key, each with a status for
	// every known evidence type.
	Statuses map[types.LineKey]map[types.EvidenceType]types.EvidenceStatus
	// Signals collects ingestion-incomplete and unmatched-evidence findings.
	Signals []types.Signal
}

// Reconcile performs a strict left join of each evidence source onto the
// spine. Every spine row receives a status for every known evidence type;
// absence of an aggregate row is a meaningful "not received", never a null.
//
// Evidence timestamped after asOf is treated as not yet received, so a
// republish for a historical as-of reproduces the historical state.
func Reconcile(spine []types.SpineRow, sources map[types.EvidenceType][]types.EvidenceAggregate, asOf time.Time, minImages int) (*Result, error) {
	if minImages <= 0 {
		minImages = DefaultMinImages
	}

	onSpine := make(map[types.LineKey]struct{}, len(spine))
	for _, row := range spine {
		onSpine[row.Key()] = struct{}{}
	}

	res := &Result{
		Statuses: make(map[types.LineKey]map[types.EvidenceType]types.EvidenceStatus, len(spine)),
	}

	indexed := make(map[types.EvidenceType]map[types.LineKey]types.EvidenceAggregate, len(types.AllEvidenceTypes))
	for _, et := range types.AllEvidenceTypes {
		rows := sources[et]
		if len(rows) == 0 {
			// Source delivered nothing this cycle: not fatal, the lines
			// just stay blocked on this evidence type.
			res.Signals = append(res.Signals, types.Signal{
				Kind:         types.SignalIngestionIncomplete,
				EvidenceType: et,
				Message:      fmt.Sprintf("no %s aggregates for this cycle; treating as not received", et),
			})
		}

		byKey := make(map[types.LineKey]types.EvidenceAggregate, len(rows))
		for _, agg := range rows {
			k := types.LineKey{ScopePackageID: agg.ScopePackageID, FlocID: agg.FlocID}
			if _, dup := byKey[k]; dup {
				return nil, &types.GrainViolation{
					Relation: fmt.Sprintf("evidence_aggregate[%s]", et),
					Key:      fmt.Sprintf("(%s, %s)", k.ScopePackageID, k.FlocID),
					Detail:   "more than one aggregate row per key",
				}
			}
			byKey[k] = agg

			if _, ok := onSpine[k]; !ok {
				res.Signals = append(res.Signals, types.Signal{
					Kind:           types.SignalUnmatchedEvidence,
					ScopePackageID: k.ScopePackageID,
					FlocID:         k.FlocID,
					EvidenceType:   et,
					Message:        "evidence key not present in awarded scope",
				})
			}
		}
		indexed[et] = byKey
	}

	for _, row := range spine {
		k := row.Key()
		statuses := make(map[types.EvidenceType]types.EvidenceStatus, len(types.AllEvidenceTypes))
		for _, et := range types.AllEvidenceTypes {
			statuses[et] = statusFor(indexed[et], k, et, asOf, minImages)
		}
		res.Statuses[k] = statuses
	}
	return res, nil
}

func statusFor(byKey map[types.LineKey]types.EvidenceAggregate, k types.LineKey, et types.EvidenceType, asOf time.Time, minImages int) types.EvidenceStatus {
	agg, ok := byKey[k]
	if !ok || agg.EvidenceTs.After(asOf) {
		return types.EvidenceStatus{Type: et, Received: false}
	}

	received := agg.Received
	if received && countGated(et) && agg.Count < minImages {
		received = false
	}

	ets := agg.EvidenceTs
	return types.EvidenceStatus{
		Type:       et,
		Received:   received,
		Count:      agg.Count,
		EvidenceTs: &ets,
	}
}

// countGated reports whether an evidence type requires a minimum item count
// in addition to the received flag.
func countGated(et types.EvidenceType) bool {
	return et == types.EvidenceImages || et == types.EvidenceDeliveries
}
