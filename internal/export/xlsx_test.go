package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/urban-analytics/simflow/internal/model"
)

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estimates.xlsx")
	summary := &model.FitSummary{
		Model:        "production",
		Deterrence:   "power",
		Coefficients: map[string]float64{"intercept": 1.2, "log_distance": -1.8},
		StdErrors:    map[string]float64{"intercept": 0.05, "log_distance": 0.02},
		R2:           0.93,
		NObs:         4,
	}

	require.NoError(t, WriteWorkbook(path, testMatrix(), summary))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sheets, 2)
	assert.Equal(t, "Matrix", file.Sheets[0].Name)
	assert.Equal(t, "Summary", file.Sheets[1].Name)

	matrix := file.Sheets[0]
	require.Len(t, matrix.Rows, 4) // header + 2 origins + totals
	assert.Equal(t, "origin", matrix.Rows[0].Cells[0].String())
	assert.Equal(t, "A", matrix.Rows[1].Cells[0].String())

	v, err := matrix.Rows[1].Cells[1].Float()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, v, 1e-9)

	total, err := matrix.Rows[3].Cells[3].Float()
	require.NoError(t, err)
	assert.InDelta(t, 25.0, total, 1e-9)
}

func TestWriteWorkbookWithoutSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix-only.xlsx")
	require.NoError(t, WriteWorkbook(path, testMatrix(), nil))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)
	assert.Equal(t, "Matrix", file.Sheets[0].Name)
}
