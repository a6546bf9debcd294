// Package export writes estimated flow matrices and fit summaries to CSV
// and XLSX, and renders human-readable reports.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/urban-analytics/simflow/internal/model"
)

// WriteMatrixCSV writes a flow matrix with origins as rows, destinations
// as columns, and marginal totals on the last row and column.
func WriteMatrixCSV(w io.Writer, m *model.Matrix) error {
	cw := csv.NewWriter(w)

	header := append([]string{"origin"}, m.Dests...)
	header = append(header, "total")
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	for i, o := range m.Origins {
		row := make([]string, 0, len(m.Dests)+2)
		row = append(row, o)
		for j := range m.Dests {
			row = append(row, formatCell(m.Cells[i][j]))
		}
		row = append(row, formatCell(m.RowTotals[i]))
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", o)
		}
	}

	totals := make([]string, 0, len(m.Dests)+2)
	totals = append(totals, "total")
	for j := range m.Dests {
		totals = append(totals, formatCell(m.ColTotals[j]))
	}
	totals = append(totals, formatCell(m.Total))
	if err := cw.Write(totals); err != nil {
		return eris.Wrap(err, "export: write csv totals")
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func formatCell(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
