package export

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/urban-analytics/simflow/internal/model"
)

var printer = message.NewPrinter(language.English)

// WriteReport renders a fit summary for the terminal.
func WriteReport(w io.Writer, run *model.Run) {
	s := run.Summary
	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Status)
	if s == nil {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "model\t%s\n", s.Model)
	fmt.Fprintf(tw, "deterrence\t%s\n", s.Deterrence)
	fmt.Fprintf(tw, "observations\t%s\n", groupedInt(int64(s.NObs)))
	fmt.Fprintf(tw, "deviance\t%.2f\n", s.Deviance)
	fmt.Fprintf(tw, "null deviance\t%.2f\n", s.NullDeviance)
	fmt.Fprintf(tw, "AIC\t%.2f\n", s.AIC)
	fmt.Fprintf(tw, "R²\t%.4f\n", s.R2)
	fmt.Fprintf(tw, "RMSE\t%.2f\n", s.RMSE)
	fmt.Fprintf(tw, "IRLS iterations\t%d\n", s.Iterations)
	tw.Flush() //nolint:errcheck

	fmt.Fprintln(w, "\nCoefficients:")
	names := make([]string, 0, len(s.Coefficients))
	for name := range s.Coefficients {
		names = append(names, name)
	}
	sort.Strings(names)

	ctw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		if se, ok := s.StdErrors[name]; ok {
			fmt.Fprintf(ctw, "  %s\t%+.6f\t(%.6f)\n", name, s.Coefficients[name], se)
		} else {
			fmt.Fprintf(ctw, "  %s\t%+.6f\n", name, s.Coefficients[name])
		}
	}
	ctw.Flush() //nolint:errcheck
}

// WriteMatrixSummary prints marginal totals with grouped digits.
func WriteMatrixSummary(w io.Writer, m *model.Matrix) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "origins\t%d\n", len(m.Origins))
	fmt.Fprintf(tw, "destinations\t%d\n", len(m.Dests))
	fmt.Fprintf(tw, "total flow\t%s\n", groupedInt(int64(math.Round(m.Total))))
	tw.Flush() //nolint:errcheck
}

func groupedInt(v int64) string {
	return printer.Sprintf("%d", v)
}
