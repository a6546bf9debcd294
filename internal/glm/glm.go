// Package glm fits Poisson log-link generalized linear models by
// iteratively reweighted least squares over gonum linear algebra.
package glm

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultTol     = 1e-10
	defaultMaxIter = 25
)

// Column is one named regressor.
type Column struct {
	Name   string
	Values []float64
}

// Model is a Poisson regression with log link. The intercept column is
// added automatically.
type Model struct {
	y     []float64
	x     *mat.Dense
	names []string

	Tol     float64
	MaxIter int
}

// NewPoisson builds a model from a response vector and regressor columns.
func NewPoisson(response []float64, cols []Column) (*Model, error) {
	n := len(response)
	if n == 0 {
		return nil, eris.New("glm: empty response")
	}
	for _, y := range response {
		if y < 0 || math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, eris.New("glm: response must be finite and non-negative")
		}
	}

	p := len(cols) + 1
	names := make([]string, 0, p)
	names = append(names, "intercept")

	x := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	for j, c := range cols {
		if len(c.Values) != n {
			return nil, eris.Errorf("glm: column %s has %d values, want %d", c.Name, len(c.Values), n)
		}
		for i, v := range c.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, eris.Errorf("glm: column %s has non-finite value at row %d", c.Name, i)
			}
			x.Set(i, j+1, v)
		}
		names = append(names, c.Name)
	}

	return &Model{
		y:       response,
		x:       x,
		names:   names,
		Tol:     defaultTol,
		MaxIter: defaultMaxIter,
	}, nil
}

// Result holds a fitted model.
type Result struct {
	Names  []string
	Coef   []float64
	StdErr []float64
	Fitted []float64

	Deviance     float64
	NullDeviance float64
	LogLik       float64
	AIC          float64
	Iterations   int
	Converged    bool
}

// Coefficient returns the fitted coefficient for a named regressor.
func (r *Result) Coefficient(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Coef[i], true
		}
	}
	return 0, false
}

// Coefficients returns all coefficients keyed by name.
func (r *Result) Coefficients() map[string]float64 {
	out := make(map[string]float64, len(r.Names))
	for i, n := range r.Names {
		out[n] = r.Coef[i]
	}
	return out
}

// StdErrors returns standard errors keyed by name.
func (r *Result) StdErrors() map[string]float64 {
	out := make(map[string]float64, len(r.Names))
	for i, n := range r.Names {
		out[n] = r.StdErr[i]
	}
	return out
}

// Fit runs IRLS until the deviance change falls below Tol.
func (m *Model) Fit() (*Result, error) {
	n, p := m.x.Dims()
	if n <= p {
		return nil, eris.Errorf("glm: %d observations for %d parameters", n, p)
	}

	// Working response starts from the data itself, shifted off zero.
	mu := make([]float64, n)
	eta := make([]float64, n)
	for i, y := range m.y {
		mu[i] = y + 0.5
		eta[i] = math.Log(mu[i])
	}

	beta := mat.NewVecDense(p, nil)
	xw := mat.NewDense(n, p, nil)
	zw := mat.NewVecDense(n, nil)

	dev := poissonDeviance(m.y, mu)
	var iter int
	converged := false

	for iter = 1; iter <= m.MaxIter; iter++ {
		// Weighted system: w_i = mu_i, z_i = eta_i + (y_i - mu_i)/mu_i.
		for i := 0; i < n; i++ {
			sw := math.Sqrt(mu[i])
			z := eta[i] + (m.y[i]-mu[i])/mu[i]
			zw.SetVec(i, sw*z)
			for j := 0; j < p; j++ {
				xw.Set(i, j, sw*m.x.At(i, j))
			}
		}

		var qr mat.QR
		qr.Factorize(xw)
		if err := qr.SolveVecTo(beta, false, zw); err != nil {
			return nil, eris.Wrap(err, "glm: singular design matrix")
		}

		for i := 0; i < n; i++ {
			e := 0.0
			for j := 0; j < p; j++ {
				e += m.x.At(i, j) * beta.AtVec(j)
			}
			eta[i] = e
			mu[i] = math.Exp(e)
			if math.IsInf(mu[i], 0) || mu[i] <= 0 {
				return nil, eris.New("glm: fitted mean diverged")
			}
		}

		newDev := poissonDeviance(m.y, mu)
		if math.Abs(dev-newDev) < m.Tol*(math.Abs(newDev)+0.1) {
			dev = newDev
			converged = true
			break
		}
		dev = newDev
	}

	if !converged {
		return nil, eris.Errorf("glm: IRLS did not converge in %d iterations", m.MaxIter)
	}

	stderr, err := m.stdErrors(mu)
	if err != nil {
		return nil, err
	}

	ll := poissonLogLik(m.y, mu)
	res := &Result{
		Names:        append([]string(nil), m.names...),
		Coef:         append([]float64(nil), beta.RawVector().Data...),
		StdErr:       stderr,
		Fitted:       append([]float64(nil), mu...),
		Deviance:     dev,
		NullDeviance: nullDeviance(m.y),
		LogLik:       ll,
		AIC:          -2*ll + 2*float64(p),
		Iterations:   iter,
		Converged:    true,
	}
	return res, nil
}

// stdErrors computes sqrt of the diagonal of (X'WX)^-1 at convergence.
func (m *Model) stdErrors(mu []float64) ([]float64, error) {
	n, p := m.x.Dims()

	wx := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			wx.Set(i, j, mu[i]*m.x.At(i, j))
		}
	}

	var xtwx mat.Dense
	xtwx.Mul(m.x.T(), wx)

	var inv mat.Dense
	if err := inv.Inverse(&xtwx); err != nil {
		return nil, eris.Wrap(err, "glm: information matrix not invertible")
	}

	out := make([]float64, p)
	for j := 0; j < p; j++ {
		out[j] = math.Sqrt(inv.At(j, j))
	}
	return out, nil
}

// poissonDeviance is 2 * sum(y*log(y/mu) - (y - mu)), with the y=0 term
// collapsing to 2*mu.
func poissonDeviance(y, mu []float64) float64 {
	var d float64
	for i := range y {
		if y[i] > 0 {
			d += y[i]*math.Log(y[i]/mu[i]) - (y[i] - mu[i])
		} else {
			d += mu[i]
		}
	}
	return 2 * d
}

// nullDeviance is the deviance of the intercept-only model, whose MLE for
// mu is the sample mean.
func nullDeviance(y []float64) float64 {
	var sum float64
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(len(y))
	mu := make([]float64, len(y))
	for i := range mu {
		mu[i] = mean
	}
	return poissonDeviance(y, mu)
}

func poissonLogLik(y, mu []float64) float64 {
	var ll float64
	for i := range y {
		lg, _ := math.Lgamma(y[i] + 1)
		ll += y[i]*math.Log(mu[i]) - mu[i] - lg
	}
	return ll
}
