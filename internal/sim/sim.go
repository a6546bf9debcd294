// Package sim implements the family of spatial interaction (gravity)
// models: unconstrained, production-constrained, attraction-constrained,
// and doubly-constrained. Models are fit as Poisson regressions with
// categorical fixed effects; estimates can equivalently be reconstructed
// from balancing factors, and the two must agree.
package sim

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/urban-analytics/simflow/internal/glm"
	"github.com/urban-analytics/simflow/internal/model"
)

// Kind selects which margins the model constrains.
type Kind string

const (
	KindUnconstrained Kind = "unconstrained"
	KindProduction    Kind = "production"
	KindAttraction    Kind = "attraction"
	KindDoubly        Kind = "doubly"
)

// ParseKind validates a model kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindUnconstrained, KindProduction, KindAttraction, KindDoubly:
		return Kind(s), nil
	}
	return "", eris.Errorf("sim: unknown model kind %q", s)
}

// Deterrence selects the distance-decay functional form.
type Deterrence string

const (
	// DeterrencePower regresses on log distance: f(d) = d^beta.
	DeterrencePower Deterrence = "power"
	// DeterrenceExponential regresses on distance: f(d) = exp(beta*d).
	DeterrenceExponential Deterrence = "exponential"
)

// ParseDeterrence validates a deterrence string.
func ParseDeterrence(s string) (Deterrence, error) {
	switch Deterrence(s) {
	case DeterrencePower, DeterrenceExponential:
		return Deterrence(s), nil
	}
	return "", eris.Errorf("sim: unknown deterrence %q", s)
}

// Spec describes one model to fit.
type Spec struct {
	Kind       Kind
	Deterrence Deterrence
}

// Fitted is a fit model plus everything derived from it.
type Fitted struct {
	Spec   Spec
	Table  *model.FlowTable
	Result *glm.Result

	Intercept float64
	// Alpha is the log-origin-size elasticity (unconstrained and
	// attraction-constrained models).
	Alpha float64
	// Gamma is the log-destination-attractiveness elasticity
	// (unconstrained and production-constrained models).
	Gamma float64
	// Beta is the distance-decay coefficient, on log distance for power
	// deterrence and on distance for exponential. Negative when farther
	// pairs see fewer flows.
	Beta float64

	// OriginEffects and DestEffects hold fixed-effect coefficients per
	// zone, with the reference (first sorted) zone at zero.
	OriginEffects map[string]float64
	DestEffects   map[string]float64

	Estimates []float64 // fitted flows, aligned with Table.Rows
	R2        float64
	RMSE      float64
}

// distanceColumn builds the deterrence regressor for the chosen form.
func distanceColumn(t *model.FlowTable, det Deterrence) glm.Column {
	vals := make([]float64, t.Len())
	if det == DeterrenceExponential {
		for i, r := range t.Rows {
			vals[i] = math.Exp(r.LogDistance)
		}
		return glm.Column{Name: "distance", Values: vals}
	}
	for i, r := range t.Rows {
		vals[i] = r.LogDistance
	}
	return glm.Column{Name: "log_distance", Values: vals}
}

func covariateColumn(t *model.FlowTable, name string) glm.Column {
	vals := make([]float64, t.Len())
	for i, r := range t.Rows {
		switch name {
		case "log_origin_size":
			vals[i] = r.LogOriginSize
		case "log_dest_attr":
			vals[i] = r.LogDestAttr
		}
	}
	return glm.Column{Name: name, Values: vals}
}

// fixedEffectColumns builds treatment-coded dummies for zone codes, with
// the first sorted code as the reference level.
func fixedEffectColumns(t *model.FlowTable, prefix string, codes []string, key func(model.Flow) string) []glm.Column {
	cols := make([]glm.Column, 0, len(codes)-1)
	for _, code := range codes[1:] {
		vals := make([]float64, t.Len())
		for i, r := range t.Rows {
			if key(r) == code {
				vals[i] = 1
			}
		}
		cols = append(cols, glm.Column{Name: prefix + "[" + code + "]", Values: vals})
	}
	return cols
}

// Fit fits the requested gravity model to a flow table.
func Fit(t *model.FlowTable, spec Spec) (*Fitted, error) {
	if t.Len() == 0 {
		return nil, eris.New("sim: empty flow table")
	}
	if len(t.Origins()) < 2 || len(t.Dests()) < 2 {
		return nil, eris.New("sim: need at least two origins and two destinations")
	}
	if spec.Deterrence == "" {
		spec.Deterrence = DeterrencePower
	}

	var cols []glm.Column
	switch spec.Kind {
	case KindUnconstrained:
		cols = append(cols,
			covariateColumn(t, "log_origin_size"),
			covariateColumn(t, "log_dest_attr"),
		)
	case KindProduction:
		cols = append(cols, fixedEffectColumns(t, "origin", t.Origins(), func(f model.Flow) string { return f.Origin })...)
		cols = append(cols, covariateColumn(t, "log_dest_attr"))
	case KindAttraction:
		cols = append(cols, fixedEffectColumns(t, "dest", t.Dests(), func(f model.Flow) string { return f.Dest })...)
		cols = append(cols, covariateColumn(t, "log_origin_size"))
	case KindDoubly:
		cols = append(cols, fixedEffectColumns(t, "origin", t.Origins(), func(f model.Flow) string { return f.Origin })...)
		cols = append(cols, fixedEffectColumns(t, "dest", t.Dests(), func(f model.Flow) string { return f.Dest })...)
	default:
		return nil, eris.Errorf("sim: unknown model kind %q", spec.Kind)
	}
	cols = append(cols, distanceColumn(t, spec.Deterrence))

	m, err := glm.NewPoisson(t.Observed(), cols)
	if err != nil {
		return nil, eris.Wrapf(err, "sim: build %s model", spec.Kind)
	}
	res, err := m.Fit()
	if err != nil {
		return nil, eris.Wrapf(err, "sim: fit %s model", spec.Kind)
	}

	f := &Fitted{
		Spec:      spec,
		Table:     t,
		Result:    res,
		Estimates: res.Fitted,
	}
	f.Intercept, _ = res.Coefficient("intercept")
	f.Alpha, _ = res.Coefficient("log_origin_size")
	f.Gamma, _ = res.Coefficient("log_dest_attr")
	if spec.Deterrence == DeterrenceExponential {
		f.Beta, _ = res.Coefficient("distance")
	} else {
		f.Beta, _ = res.Coefficient("log_distance")
	}

	if spec.Kind == KindProduction || spec.Kind == KindDoubly {
		f.OriginEffects = effectMap(res, "origin", t.Origins())
	}
	if spec.Kind == KindAttraction || spec.Kind == KindDoubly {
		f.DestEffects = effectMap(res, "dest", t.Dests())
	}

	obs := t.Observed()
	f.R2 = RSquared(obs, f.Estimates)
	f.RMSE = RMSE(obs, f.Estimates)
	return f, nil
}

func effectMap(res *glm.Result, prefix string, codes []string) map[string]float64 {
	out := make(map[string]float64, len(codes))
	out[codes[0]] = 0 // reference level
	for _, code := range codes[1:] {
		if v, ok := res.Coefficient(prefix + "[" + code + "]"); ok {
			out[code] = v
		}
	}
	return out
}

// deterrence evaluates f(d) for one row under the fitted beta.
func deterrence(logDist, beta float64, det Deterrence) float64 {
	if det == DeterrenceExponential {
		return math.Exp(beta * math.Exp(logDist))
	}
	return math.Exp(beta * logDist)
}

// Summary flattens the fit into the persisted record.
func (f *Fitted) Summary() *model.FitSummary {
	return &model.FitSummary{
		Model:        string(f.Spec.Kind),
		Deterrence:   string(f.Spec.Deterrence),
		Coefficients: f.Result.Coefficients(),
		StdErrors:    f.Result.StdErrors(),
		Deviance:     f.Result.Deviance,
		NullDeviance: f.Result.NullDeviance,
		AIC:          f.Result.AIC,
		R2:           f.R2,
		RMSE:         f.RMSE,
		NObs:         f.Table.Len(),
		Iterations:   f.Result.Iterations,
		Converged:    f.Result.Converged,
	}
}

// EstimateMatrix pivots the fitted flows into a dense OD matrix.
func (f *Fitted) EstimateMatrix() (*model.Matrix, error) {
	return f.Table.Pivot(f.Estimates)
}

// CheckMargins verifies the constrained-margin identities: row sums equal
// observed origin totals for production-constrained fits, column sums
// equal observed destination totals for attraction-constrained fits, and
// both for doubly-constrained fits. tol is relative.
func (f *Fitted) CheckMargins(tol float64) error {
	m, err := f.EstimateMatrix()
	if err != nil {
		return err
	}

	checkRows := f.Spec.Kind == KindProduction || f.Spec.Kind == KindDoubly
	checkCols := f.Spec.Kind == KindAttraction || f.Spec.Kind == KindDoubly

	if checkRows {
		want := f.Table.OriginTotals()
		for i, o := range m.Origins {
			if relDiff(m.RowTotals[i], want[o]) > tol {
				return eris.Errorf("sim: origin %s estimated total %.4f != observed %.4f", o, m.RowTotals[i], want[o])
			}
		}
	}
	if checkCols {
		want := f.Table.DestTotals()
		for j, d := range m.Dests {
			if relDiff(m.ColTotals[j], want[d]) > tol {
				return eris.Errorf("sim: destination %s estimated total %.4f != observed %.4f", d, m.ColTotals[j], want[d])
			}
		}
	}
	return nil
}

func relDiff(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}
