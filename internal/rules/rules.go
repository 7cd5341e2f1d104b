// Package rules implements the versioned eligibility rule engine.
//
// A rule is a pure function from reconciled line facts to an eligibility
// decision. The registry is append-only: once a version has been used by a
// published snapshot it is never edited, so any snapshot can be reproduced by
// re-running its recorded rule version over its recorded inputs.
package rules

import (
	"fmt"
	"sort"

	"github.com/snapline-io/snapline/pkg/types"
)

// Decision is the output of evaluating one line under one rule version.
type Decision struct {
	ReadyToInvoice bool
	BlockerCodes   []types.BlockerCode
}

// Rule computes a Decision from reconciled line facts. Implementations must be
// referentially transparent: no clocks, no I/O, no hidden state.
type Rule func(line types.ReconciledLine) Decision

// Built-in rule version identifiers.
const (
	V1 types.RuleVersion = "v1"
	V2 types.RuleVersion = "v2"
)

// Registry maps immutable rule versions to their evaluation functions.
type Registry struct {
	rules map[types.RuleVersion]Rule
}

// NewRegistry creates a registry with the built-in rule versions registered.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[types.RuleVersion]Rule)}
	// Registration order is part of the audit story: versions only ever get
	// appended here, never replaced.
	r.mustRegister(V1, evaluateV1)
	r.mustRegister(V2, evaluateV2)
	return r
}

// Register adds a new rule version. Re-registering an existing version is an
// error: published snapshots reference versions by identity.
func (r *Registry) Register(version types.RuleVersion, rule Rule) error {
	if version == "" {
		return fmt.Errorf("rule version must not be empty")
	}
	if _, exists := r.rules[version]; exists {
		return fmt.Errorf("rule version %q already registered; ship changes as a new version", version)
	}
	r.rules[version] = rule
	return nil
}

// Evaluate runs the named rule version over one reconciled line.
func (r *Registry) Evaluate(version types.RuleVersion, line types.ReconciledLine) (Decision, error) {
	rule, ok := r.rules[version]
	if !ok {
		return Decision{}, &types.RuleVersionUnknown{Version: version}
	}
	return rule(line), nil
}

// Has reports whether a rule version is registered.
func (r *Registry) Has(version types.RuleVersion) bool {
	_, ok := r.rules[version]
	return ok
}

// Versions returns the registered versions in sorted order.
func (r *Registry) Versions() []types.RuleVersion {
	out := make([]types.RuleVersion, 0, len(r.rules))
	for v := range r.rules {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) mustRegister(version types.RuleVersion, rule Rule) {
	if err := r.Register(version, rule); err != nil {
		panic(err)
	}
}

// evaluateV1 is the baseline rule:
//
//	ready = assignment_current AND survey AND images AND NOT invoiced
//
// Deliveries evidence and paid status are inputs v1 deliberately ignores.
func evaluateV1(line types.ReconciledLine) Decision {
	var blockers []types.BlockerCode

	if !line.AssignmentCurrent {
		blockers = append(blockers, types.BlockAssignmentStale)
	}
	if !line.Evidence[types.EvidenceSurvey].Received {
		blockers = append(blockers, types.BlockMissingSurvey)
	}
	if !line.Evidence[types.EvidenceImages].Received {
		blockers = append(blockers, types.BlockMissingImages)
	}
	if line.Invoiced {
		blockers = append(blockers, types.BlockAlreadyInvoiced)
	}

	return Decision{ReadyToInvoice: len(blockers) == 0, BlockerCodes: blockers}
}

// evaluateV2 extends v1: it additionally requires delivery confirmation and
// blocks lines that were already paid.
func evaluateV2(line types.ReconciledLine) Decision {
	d := evaluateV1(line)

	if !line.Evidence[types.EvidenceDeliveries].Received {
		d.BlockerCodes = append(d.BlockerCodes, types.BlockMissingDeliveries)
	}
	if line.Paid {
		d.BlockerCodes = append(d.BlockerCodes, types.BlockAlreadyPaid)
	}

	d.ReadyToInvoice = len(d.BlockerCodes) == 0
	return d
}
