package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelativeDifference(t *testing.T) {
	tests := []struct {
		name   string
		fine   OptFloat
		coarse OptFloat
		want   float64
	}{
		{"both zero", Float(0), Float(0), 0},
		{"fine missing", OptFloat{}, Float(5), 0},
		{"coarse missing", Float(5), OptFloat{}, 0},
		{"growth from zero", Float(10), Float(0), 1},
		{"negative from zero", Float(-2), Float(0), -1},
		{"half more", Float(15), Float(10), 0.5},
		{"half less", Float(5), Float(10), -0.5},
		{"equal", Float(7), Float(7), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RelativeDifference(tt.fine, tt.coarse), 1e-12)
		})
	}
}

func TestReconcile(t *testing.T) {
	aggregated := []ImpactRecord{
		{EventID: "E1", AreaCode: "CHN", NumMin: Float(8), NumMax: Float(14), NumApprox: Float(0)},
		{EventID: "E1", AreaCode: "VNM", NumMin: Float(1), NumMax: Float(1), NumApprox: Float(1)},
		{EventID: "E2", AreaCode: "CHN", NumMin: Float(3), NumMax: Float(3), NumApprox: Float(3)},
	}
	instance := []ImpactRecord{
		{EventID: "E1", AreaCode: "CHN", NumMin: Float(4), NumMax: Float(14), NumApprox: Float(0)},
		{EventID: "E2", AreaCode: "CHN", NumMin: Float(0)},
		{EventID: "E9", AreaCode: "CHN", NumMin: Float(1)},
	}

	got := Reconcile(aggregated, instance)
	require.Len(t, got, 2, "VNM and E9 have no partner")

	assert.Equal(t, "E1", got[0].EventID)
	assert.InDelta(t, 1.0, got[0].RelDiff.Min, 1e-12)
	assert.InDelta(t, 0.0, got[0].RelDiff.Max, 1e-12)
	assert.InDelta(t, 0.0, got[0].RelDiff.Approx, 1e-12)
	assert.Equal(t, Float(4), got[0].Instance.Min)
	assert.Equal(t, Float(8), got[0].Specific.Min)

	assert.Equal(t, "E2", got[1].EventID)
	assert.InDelta(t, 1.0, got[1].RelDiff.Min, 1e-12, "3 over a zero instance value")
	assert.InDelta(t, 0.0, got[1].RelDiff.Max, 1e-12, "missing instance value")
}

func TestMeanRelativeDifference(t *testing.T) {
	rows := []ReconciliationRecord{
		{RelDiff: FieldDiffs{Min: 1, Max: 0.5, Approx: 0}},
		{RelDiff: FieldDiffs{Min: 0, Max: -0.5, Approx: 0}},
	}

	mean := MeanRelativeDifference(rows)
	assert.Equal(t, Float(0.5), mean.Min)
	assert.Equal(t, Float(0), mean.Max)
	assert.Equal(t, Float(0), mean.Approx)

	empty := MeanRelativeDifference(nil)
	assert.False(t, empty.Min.Valid)
}
