package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urban-analytics/simflow/internal/model"
)

func testMatrix() *model.Matrix {
	tab := model.NewFlowTable("commute", []model.Flow{
		{Origin: "A", Dest: "X", Observed: 5},
		{Origin: "A", Dest: "Y", Observed: 3},
		{Origin: "B", Dest: "X", Observed: 7},
		{Origin: "B", Dest: "Y", Observed: 10},
	})
	m, _ := tab.PivotObserved()
	return m
}

func TestWriteMatrixCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatrixCSV(&buf, testMatrix()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4) // header + 2 origins + totals

	assert.Equal(t, []string{"origin", "X", "Y", "total"}, records[0])
	assert.Equal(t, []string{"A", "5.00", "3.00", "8.00"}, records[1])
	assert.Equal(t, []string{"B", "7.00", "10.00", "17.00"}, records[2])
	assert.Equal(t, []string{"total", "12.00", "13.00", "25.00"}, records[3])
}
