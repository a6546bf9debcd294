package sim

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RSquared is the squared Pearson correlation between observed and
// estimated flows. Returns 0 when either series is constant.
func RSquared(observed, estimated []float64) float64 {
	r := stat.Correlation(observed, estimated, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r * r
}

// RMSE is the root mean squared error of estimates against observations.
func RMSE(observed, estimated []float64) float64 {
	if len(observed) == 0 {
		return 0
	}
	var ss float64
	for i := range observed {
		d := observed[i] - estimated[i]
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(observed)))
}
