package sim

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/urban-analytics/simflow/internal/model"
)

// ProductionFactors computes the balancing factors
//
//	A_i = 1 / sum_j W_j^gamma f(d_ij)
//
// where W_j is destination attractiveness and f is the deterrence function
// under the signed fitted beta. The production-constrained estimate is
// then T_ij = A_i O_i W_j^gamma f(d_ij) with O_i the observed origin
// totals.
func ProductionFactors(t *model.FlowTable, gamma, beta float64, det Deterrence) map[string]float64 {
	denom := make(map[string]float64, len(t.Origins()))
	for _, r := range t.Rows {
		denom[r.Origin] += math.Exp(gamma*r.LogDestAttr) * deterrence(r.LogDistance, beta, det)
	}
	out := make(map[string]float64, len(denom))
	for o, d := range denom {
		out[o] = 1 / d
	}
	return out
}

// AttractionFactors computes B_j = 1 / sum_i O_i^alpha f(d_ij), with O_i
// here the origin-size covariate. The attraction-constrained estimate is
// T_ij = B_j D_j O_i^alpha f(d_ij) with D_j the observed destination
// totals.
func AttractionFactors(t *model.FlowTable, alpha, beta float64, det Deterrence) map[string]float64 {
	denom := make(map[string]float64, len(t.Dests()))
	for _, r := range t.Rows {
		denom[r.Dest] += math.Exp(alpha*r.LogOriginSize) * deterrence(r.LogDistance, beta, det)
	}
	out := make(map[string]float64, len(denom))
	for d, v := range denom {
		out[d] = 1 / v
	}
	return out
}

// ReconstructProduction rebuilds the production-constrained estimates in
// closed form from gamma and beta. It must reproduce the regression-fitted
// values: the Poisson score equations force each origin's fitted total to
// equal its observed total, which is exactly what A_i normalizes to.
func ReconstructProduction(t *model.FlowTable, gamma, beta float64, det Deterrence) ([]float64, map[string]float64) {
	a := ProductionFactors(t, gamma, beta, det)
	o := t.OriginTotals()
	est := make([]float64, t.Len())
	for i, r := range t.Rows {
		est[i] = a[r.Origin] * o[r.Origin] * math.Exp(gamma*r.LogDestAttr) * deterrence(r.LogDistance, beta, det)
	}
	return est, a
}

// ReconstructAttraction rebuilds the attraction-constrained estimates in
// closed form from alpha and beta.
func ReconstructAttraction(t *model.FlowTable, alpha, beta float64, det Deterrence) ([]float64, map[string]float64) {
	b := AttractionFactors(t, alpha, beta, det)
	d := t.DestTotals()
	est := make([]float64, t.Len())
	for i, r := range t.Rows {
		est[i] = b[r.Dest] * d[r.Dest] * math.Exp(alpha*r.LogOriginSize) * deterrence(r.LogDistance, beta, det)
	}
	return est, b
}

// DoublyFactors holds the interdependent balancing factors of the
// doubly-constrained model.
type DoublyFactors struct {
	A          map[string]float64
	B          map[string]float64
	Iterations int
}

const (
	furnessTol     = 1e-10
	furnessMaxIter = 1000
)

// Furness solves the doubly-constrained balancing factors by fixed-point
// iteration:
//
//	A_i = 1 / sum_j B_j D_j f(d_ij)
//	B_j = 1 / sum_i A_i O_i f(d_ij)
//
// starting from B = 1, until both margins reproduce the observed totals.
// Estimates are T_ij = A_i O_i B_j D_j f(d_ij). Fails on a zero margin.
func Furness(t *model.FlowTable, beta float64, det Deterrence) ([]float64, *DoublyFactors, error) {
	oTot := t.OriginTotals()
	dTot := t.DestTotals()
	for o, v := range oTot {
		if v <= 0 {
			return nil, nil, eris.Errorf("sim: furness: origin %s has non-positive total %.4f", o, v)
		}
	}
	for d, v := range dTot {
		if v <= 0 {
			return nil, nil, eris.Errorf("sim: furness: destination %s has non-positive total %.4f", d, v)
		}
	}

	// Deterrence is fixed across sweeps.
	f := make([]float64, t.Len())
	for i, r := range t.Rows {
		f[i] = deterrence(r.LogDistance, beta, det)
	}

	a := make(map[string]float64, len(oTot))
	b := make(map[string]float64, len(dTot))
	for d := range dTot {
		b[d] = 1
	}

	var iter int
	for iter = 1; iter <= furnessMaxIter; iter++ {
		denomA := make(map[string]float64, len(oTot))
		for i, r := range t.Rows {
			denomA[r.Origin] += b[r.Dest] * dTot[r.Dest] * f[i]
		}
		for o, v := range denomA {
			a[o] = 1 / v
		}

		denomB := make(map[string]float64, len(dTot))
		for i, r := range t.Rows {
			denomB[r.Dest] += a[r.Origin] * oTot[r.Origin] * f[i]
		}

		var maxShift float64
		for d, v := range denomB {
			next := 1 / v
			shift := math.Abs(next-b[d]) / next
			if shift > maxShift {
				maxShift = shift
			}
			b[d] = next
		}

		if maxShift < furnessTol {
			break
		}
	}
	if iter > furnessMaxIter {
		return nil, nil, eris.Errorf("sim: furness did not converge in %d iterations", furnessMaxIter)
	}

	est := make([]float64, t.Len())
	for i, r := range t.Rows {
		est[i] = a[r.Origin] * oTot[r.Origin] * b[r.Dest] * dTot[r.Dest] * f[i]
	}
	return est, &DoublyFactors{A: a, B: b, Iterations: iter}, nil
}

// Reconstruct rebuilds the fitted estimates via the balancing-factor
// closed forms appropriate to the model kind. For the unconstrained model
// this is the direct gravity equation from the fitted coefficients.
func (f *Fitted) Reconstruct() ([]float64, error) {
	switch f.Spec.Kind {
	case KindUnconstrained:
		est := make([]float64, f.Table.Len())
		for i, r := range f.Table.Rows {
			est[i] = math.Exp(f.Intercept+f.Alpha*r.LogOriginSize+f.Gamma*r.LogDestAttr) *
				deterrence(r.LogDistance, f.Beta, f.Spec.Deterrence)
		}
		return est, nil
	case KindProduction:
		est, _ := ReconstructProduction(f.Table, f.Gamma, f.Beta, f.Spec.Deterrence)
		return est, nil
	case KindAttraction:
		est, _ := ReconstructAttraction(f.Table, f.Alpha, f.Beta, f.Spec.Deterrence)
		return est, nil
	case KindDoubly:
		est, _, err := Furness(f.Table, f.Beta, f.Spec.Deterrence)
		return est, err
	}
	return nil, eris.Errorf("sim: unknown model kind %q", f.Spec.Kind)
}
