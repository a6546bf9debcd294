package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urban-analytics/simflow/internal/export"
	"github.com/urban-analytics/simflow/internal/model"
)

var (
	exportRunID  string
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run's estimated flow matrix",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, exportRunID)
		if err != nil {
			return eris.Wrapf(err, "get run %s", exportRunID)
		}

		ests, err := st.LoadEstimates(ctx, exportRunID)
		if err != nil {
			return eris.Wrap(err, "load estimates")
		}
		if len(ests) == 0 {
			return eris.Errorf("run %s has no stored estimates", exportRunID)
		}
		m := model.MatrixFromValues(ests)

		switch exportFormat {
		case "csv":
			out := os.Stdout
			if exportOut != "" {
				f, err := os.Create(exportOut)
				if err != nil {
					return eris.Wrapf(err, "create %s", exportOut)
				}
				defer f.Close() //nolint:errcheck
				out = f
			}
			if err := export.WriteMatrixCSV(out, m); err != nil {
				return err
			}
		case "xlsx":
			if exportOut == "" {
				return eris.New("--out is required for xlsx export")
			}
			if err := export.WriteWorkbook(exportOut, m, run.Summary); err != nil {
				return err
			}
		default:
			return eris.Errorf("unsupported format %q (csv, xlsx)", exportFormat)
		}

		zap.L().Info("export complete",
			zap.String("run_id", exportRunID),
			zap.String("format", exportFormat),
			zap.String("out", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "run ID (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default: stdout for csv)")
	_ = exportCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(exportCmd)
}
