package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapline-io/snapline/pkg/types"
)

func line(current, survey, images, deliveries, invoiced, paid bool) types.ReconciledLine {
	return types.ReconciledLine{
		SpineRow: types.SpineRow{
			ScopePackageID:    "P1",
			FlocID:            "F1",
			AssignmentCurrent: current,
		},
		Evidence: map[types.EvidenceType]types.EvidenceStatus{
			types.EvidenceSurvey:     {Type: types.EvidenceSurvey, Received: survey},
			types.EvidenceImages:     {Type: types.EvidenceImages, Received: images},
			types.EvidenceDeliveries: {Type: types.EvidenceDeliveries, Received: deliveries},
		},
		Invoiced: invoiced,
		Paid:     paid,
	}
}

func TestEvaluateV1(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name     string
		line     types.ReconciledLine
		ready    bool
		blockers []types.BlockerCode
	}{
		{
			name:  "all clear",
			line:  line(true, true, true, false, false, false),
			ready: true,
		},
		{
			name:     "survey only blocks on images",
			line:     line(true, true, false, false, false, false),
			blockers: []types.BlockerCode{types.BlockMissingImages},
		},
		{
			name:     "already invoiced",
			line:     line(true, true, true, false, true, false),
			blockers: []types.BlockerCode{types.BlockAlreadyInvoiced},
		},
		{
			name:     "stale assignment",
			line:     line(false, true, true, false, false, false),
			blockers: []types.BlockerCode{types.BlockAssignmentStale},
		},
		{
			name: "everything missing accumulates blockers",
			line: line(false, false, false, false, true, false),
			blockers: []types.BlockerCode{
				types.BlockAssignmentStale,
				types.BlockMissingSurvey,
				types.BlockMissingImages,
				types.BlockAlreadyInvoiced,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := reg.Evaluate(V1, tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.ready, d.ReadyToInvoice)
			assert.Equal(t, tt.blockers, d.BlockerCodes)
		})
	}
}

func TestEvaluateV1_IgnoresDeliveriesAndPaid(t *testing.T) {
	reg := NewRegistry()

	d, err := reg.Evaluate(V1, line(true, true, true, false, false, true))
	require.NoError(t, err)
	assert.True(t, d.ReadyToInvoice, "v1 must not look at deliveries or paid status")
}

func TestEvaluateV2(t *testing.T) {
	reg := NewRegistry()

	d, err := reg.Evaluate(V2, line(true, true, true, false, false, false))
	require.NoError(t, err)
	assert.False(t, d.ReadyToInvoice)
	assert.Contains(t, d.BlockerCodes, types.BlockMissingDeliveries)

	d, err = reg.Evaluate(V2, line(true, true, true, true, false, false))
	require.NoError(t, err)
	assert.True(t, d.ReadyToInvoice)

	d, err = reg.Evaluate(V2, line(true, true, true, true, true, true))
	require.NoError(t, err)
	assert.Contains(t, d.BlockerCodes, types.BlockAlreadyPaid)
}

func TestEvaluate_UnknownVersion(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Evaluate("v99", line(true, true, true, true, false, false))
	var unknown *types.RuleVersionUnknown
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, types.RuleVersion("v99"), unknown.Version)
}

func TestRegister_RejectsExistingVersion(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(V1, func(types.ReconciledLine) Decision { return Decision{} })
	require.Error(t, err)
}

func TestEvaluate_Deterministic(t *testing.T) {
	reg := NewRegistry()
	in := line(true, true, false, false, true, false)

	first, err := reg.Evaluate(V1, in)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := reg.Evaluate(V1, in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestVersions_Sorted(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []types.RuleVersion{V1, V2}, reg.Versions())
}
