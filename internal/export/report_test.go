package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/urban-analytics/simflow/internal/model"
)

func TestWriteReport(t *testing.T) {
	run := &model.Run{
		ID:     "run-1",
		Status: model.RunStatusComplete,
		Summary: &model.FitSummary{
			Model:      "production",
			Deterrence: "power",
			Coefficients: map[string]float64{
				"intercept":    1.234567,
				"log_distance": -1.812345,
			},
			StdErrors: map[string]float64{
				"intercept":    0.05,
				"log_distance": 0.02,
			},
			Deviance:   4.2,
			AIC:        120.5,
			R2:         0.9312,
			RMSE:       12.4,
			NObs:       1024,
			Iterations: 6,
			Converged:  true,
		},
	}

	var buf bytes.Buffer
	WriteReport(&buf, run)
	out := buf.String()

	assert.Contains(t, out, "Run run-1 (complete)")
	assert.Contains(t, out, "production")
	assert.Contains(t, out, "1,024")
	assert.Contains(t, out, "0.9312")
	assert.Contains(t, out, "Coefficients:")
	assert.Contains(t, out, "intercept")
	assert.Contains(t, out, "-1.812345")
	assert.Contains(t, out, "(0.020000)")
}

func TestWriteReportNoSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteReport(&buf, &model.Run{ID: "run-2", Status: model.RunStatusQueued})

	assert.Equal(t, "Run run-2 (queued)\n", buf.String())
}

func TestWriteMatrixSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteMatrixSummary(&buf, testMatrix())
	out := buf.String()

	assert.Contains(t, out, "origins")
	assert.Contains(t, out, "2")
	assert.Contains(t, out, "total flow")
	assert.Contains(t, out, "25")
}
