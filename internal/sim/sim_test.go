package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urban-analytics/simflow/internal/model"
)

// commuteTable is a small OD fixture with plausible gravity structure:
// nearby pairs carry larger flows.
func commuteTable(t *testing.T) *model.FlowTable {
	t.Helper()

	sizes := map[string]float64{"A": 6.9, "B": 7.6, "C": 8.2}
	attrs := map[string]float64{"X": 5.3, "Y": 6.1, "Z": 6.8}
	dists := map[string]map[string]float64{
		"A": {"X": 12, "Y": 25, "Z": 40},
		"B": {"X": 18, "Y": 8, "Z": 30},
		"C": {"X": 35, "Y": 22, "Z": 10},
	}
	observed := map[string]map[string]float64{
		"A": {"X": 120, "Y": 45, "Z": 22},
		"B": {"X": 60, "Y": 260, "Z": 35},
		"C": {"X": 20, "Y": 70, "Z": 300},
	}

	var rows []model.Flow
	for _, o := range []string{"A", "B", "C"} {
		for _, d := range []string{"X", "Y", "Z"} {
			rows = append(rows, model.Flow{
				Origin:        o,
				Dest:          d,
				Observed:      observed[o][d],
				LogDestAttr:   attrs[d],
				LogOriginSize: sizes[o],
				LogDistance:   math.Log(dists[o][d]),
			})
		}
	}
	return model.NewFlowTable("commute", rows)
}

// gravityTable generates observations exactly from the unconstrained
// gravity equation, so a fit should recover the generating parameters.
func gravityTable(t *testing.T, b0, alpha, gamma, beta float64) *model.FlowTable {
	t.Helper()

	tab := commuteTable(t)
	for i := range tab.Rows {
		r := &tab.Rows[i]
		r.Observed = math.Exp(b0 + alpha*r.LogOriginSize + gamma*r.LogDestAttr + beta*r.LogDistance)
	}
	return tab
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"unconstrained", "production", "attraction", "doubly"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, Kind(s), k)
	}

	_, err := ParseKind("gravity")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model kind")
}

func TestParseDeterrence(t *testing.T) {
	for _, s := range []string{"power", "exponential"} {
		d, err := ParseDeterrence(s)
		require.NoError(t, err)
		assert.Equal(t, Deterrence(s), d)
	}

	_, err := ParseDeterrence("gaussian")
	require.Error(t, err)
}

func TestFitUnconstrainedRecoversParameters(t *testing.T) {
	tab := gravityTable(t, 0.5, 0.8, 1.2, -1.5)

	f, err := Fit(tab, Spec{Kind: KindUnconstrained, Deterrence: DeterrencePower})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, f.Intercept, 1e-6)
	assert.InDelta(t, 0.8, f.Alpha, 1e-6)
	assert.InDelta(t, 1.2, f.Gamma, 1e-6)
	assert.InDelta(t, -1.5, f.Beta, 1e-6)
	assert.InDelta(t, 1.0, f.R2, 1e-9)
	assert.InDelta(t, 0, f.RMSE, 1e-6)
}

func TestFitProductionMarginsHold(t *testing.T) {
	tab := commuteTable(t)

	f, err := Fit(tab, Spec{Kind: KindProduction})
	require.NoError(t, err)
	require.NoError(t, f.CheckMargins(1e-6))

	// Each origin's fitted outflow equals its observed outflow.
	m, err := f.EstimateMatrix()
	require.NoError(t, err)
	want := tab.OriginTotals()
	for i, o := range m.Origins {
		assert.InEpsilon(t, want[o], m.RowTotals[i], 1e-6, "origin %s", o)
	}
	assert.NotNil(t, f.OriginEffects)
	assert.Equal(t, 0.0, f.OriginEffects["A"]) // reference level
	assert.Negative(t, f.Beta)
}

func TestFitAttractionMarginsHold(t *testing.T) {
	tab := commuteTable(t)

	f, err := Fit(tab, Spec{Kind: KindAttraction})
	require.NoError(t, err)
	require.NoError(t, f.CheckMargins(1e-6))

	m, err := f.EstimateMatrix()
	require.NoError(t, err)
	want := tab.DestTotals()
	for j, d := range m.Dests {
		assert.InEpsilon(t, want[d], m.ColTotals[j], 1e-6, "dest %s", d)
	}
	assert.Equal(t, 0.0, f.DestEffects["X"])
}

func TestFitDoublyBothMarginsHold(t *testing.T) {
	tab := commuteTable(t)

	f, err := Fit(tab, Spec{Kind: KindDoubly})
	require.NoError(t, err)
	require.NoError(t, f.CheckMargins(1e-6))

	m, err := f.EstimateMatrix()
	require.NoError(t, err)
	oWant := tab.OriginTotals()
	dWant := tab.DestTotals()
	for i, o := range m.Origins {
		assert.InEpsilon(t, oWant[o], m.RowTotals[i], 1e-6)
	}
	for j, d := range m.Dests {
		assert.InEpsilon(t, dWant[d], m.ColTotals[j], 1e-6)
	}
}

func TestFitExponentialDeterrence(t *testing.T) {
	tab := commuteTable(t)

	f, err := Fit(tab, Spec{Kind: KindProduction, Deterrence: DeterrenceExponential})
	require.NoError(t, err)
	require.NoError(t, f.CheckMargins(1e-6))
	assert.Negative(t, f.Beta)

	_, ok := f.Result.Coefficient("distance")
	assert.True(t, ok)
}

func TestFitDefaultsToPowerDeterrence(t *testing.T) {
	tab := commuteTable(t)

	f, err := Fit(tab, Spec{Kind: KindProduction})
	require.NoError(t, err)
	assert.Equal(t, DeterrencePower, f.Spec.Deterrence)
}

func TestFitRejectsEmptyTable(t *testing.T) {
	_, err := Fit(model.NewFlowTable("empty", nil), Spec{Kind: KindProduction})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty flow table")
}

func TestFitRejectsSingleOrigin(t *testing.T) {
	tab := model.NewFlowTable("tiny", []model.Flow{
		{Origin: "A", Dest: "X", Observed: 5, LogDistance: 1},
		{Origin: "A", Dest: "Y", Observed: 3, LogDistance: 2},
	})
	_, err := Fit(tab, Spec{Kind: KindProduction})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two")
}

func TestFitRejectsUnknownKind(t *testing.T) {
	_, err := Fit(commuteTable(t), Spec{Kind: "entropic"})
	require.Error(t, err)
}

func TestCheckMarginsDetectsViolation(t *testing.T) {
	tab := commuteTable(t)

	f, err := Fit(tab, Spec{Kind: KindProduction})
	require.NoError(t, err)

	// Inflate the estimates so the row totals no longer match.
	for i := range f.Estimates {
		f.Estimates[i] *= 1.1
	}
	err = f.CheckMargins(1e-6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "estimated total")
}

func TestSummary(t *testing.T) {
	tab := commuteTable(t)

	f, err := Fit(tab, Spec{Kind: KindDoubly, Deterrence: DeterrencePower})
	require.NoError(t, err)

	s := f.Summary()
	assert.Equal(t, "doubly", s.Model)
	assert.Equal(t, "power", s.Deterrence)
	assert.Equal(t, 9, s.NObs)
	assert.True(t, s.Converged)
	assert.Greater(t, s.NullDeviance, s.Deviance)
	assert.Contains(t, s.Coefficients, "intercept")
	assert.Contains(t, s.Coefficients, "log_distance")
	assert.Contains(t, s.StdErrors, "log_distance")
	assert.InDelta(t, f.R2, s.R2, 0)
}
