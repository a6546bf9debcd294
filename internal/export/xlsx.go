package export

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/urban-analytics/simflow/internal/model"
)

// WriteWorkbook writes an XLSX workbook with the estimated matrix on one
// sheet and the fit summary on another.
func WriteWorkbook(path string, m *model.Matrix, summary *model.FitSummary) error {
	file := xlsx.NewFile()

	sheet, err := file.AddSheet("Matrix")
	if err != nil {
		return eris.Wrap(err, "export: add matrix sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString("origin")
	for _, d := range m.Dests {
		header.AddCell().SetString(d)
	}
	header.AddCell().SetString("total")

	for i, o := range m.Origins {
		row := sheet.AddRow()
		row.AddCell().SetString(o)
		for j := range m.Dests {
			row.AddCell().SetFloatWithFormat(m.Cells[i][j], "0.00")
		}
		row.AddCell().SetFloatWithFormat(m.RowTotals[i], "0.00")
	}

	totals := sheet.AddRow()
	totals.AddCell().SetString("total")
	for j := range m.Dests {
		totals.AddCell().SetFloatWithFormat(m.ColTotals[j], "0.00")
	}
	totals.AddCell().SetFloatWithFormat(m.Total, "0.00")

	if summary != nil {
		if err := addSummarySheet(file, summary); err != nil {
			return err
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addSummarySheet(file *xlsx.File, summary *model.FitSummary) error {
	sheet, err := file.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	addPair := func(k, v string) {
		row := sheet.AddRow()
		row.AddCell().SetString(k)
		row.AddCell().SetString(v)
	}

	addPair("model", summary.Model)
	addPair("deterrence", summary.Deterrence)
	addPair("n_obs", fmt.Sprintf("%d", summary.NObs))
	addPair("deviance", fmt.Sprintf("%.4f", summary.Deviance))
	addPair("null_deviance", fmt.Sprintf("%.4f", summary.NullDeviance))
	addPair("aic", fmt.Sprintf("%.4f", summary.AIC))
	addPair("r2", fmt.Sprintf("%.6f", summary.R2))
	addPair("rmse", fmt.Sprintf("%.4f", summary.RMSE))
	addPair("iterations", fmt.Sprintf("%d", summary.Iterations))

	names := make([]string, 0, len(summary.Coefficients))
	for name := range summary.Coefficients {
		names = append(names, name)
	}
	sort.Strings(names)

	sheet.AddRow() // spacer
	coefHeader := sheet.AddRow()
	coefHeader.AddCell().SetString("coefficient")
	coefHeader.AddCell().SetString("estimate")
	coefHeader.AddCell().SetString("std_error")
	for _, name := range names {
		row := sheet.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetFloatWithFormat(summary.Coefficients[name], "0.000000")
		if se, ok := summary.StdErrors[name]; ok {
			row.AddCell().SetFloatWithFormat(se, "0.000000")
		}
	}
	return nil
}
