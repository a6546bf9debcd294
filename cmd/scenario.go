package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urban-analytics/simflow/internal/scenario"
	"github.com/urban-analytics/simflow/internal/sim"
)

var (
	scenarioDataset    string
	scenarioModel      string
	scenarioDeterrence string
	scenarioSpecs      []string
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Evaluate what-if scenarios against a fitted model",
	Long:  "Fits the model, applies YAML scenario perturbations, recomputes balancing factors under the fitted coefficients, and reports zone-level flow shifts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		kind, err := sim.ParseKind(scenarioModel)
		if err != nil {
			return err
		}
		detStr := scenarioDeterrence
		if detStr == "" {
			detStr = cfg.Fit.Deterrence
		}
		det, err := sim.ParseDeterrence(detStr)
		if err != nil {
			return err
		}

		specs := make([]*scenario.Spec, 0, len(scenarioSpecs))
		for _, path := range scenarioSpecs {
			s, err := scenario.Load(path)
			if err != nil {
				return err
			}
			specs = append(specs, s)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		table, err := st.LoadFlows(ctx, scenarioDataset)
		if err != nil {
			return eris.Wrap(err, "load flows")
		}
		if table.Len() == 0 {
			return eris.Errorf("dataset %s has no flows", scenarioDataset)
		}

		fitted, err := sim.Fit(table, sim.Spec{Kind: kind, Deterrence: det})
		if err != nil {
			return eris.Wrapf(err, "fit %s model", kind)
		}

		outcomes, err := scenario.EvaluateAll(ctx, fitted, specs, cfg.Scenario.Concurrency)
		if err != nil {
			return eris.Wrap(err, "evaluate scenarios")
		}

		for _, o := range outcomes {
			fmt.Printf("\nScenario: %s\n", o.Name)
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "zone\tbase\tscenario\tdelta")
			for _, c := range o.Changes {
				fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%+.1f\n", c.Zone, c.Base, c.Scenario, c.Delta)
			}
			tw.Flush() //nolint:errcheck
		}

		zap.L().Info("scenario evaluation complete",
			zap.String("dataset", scenarioDataset),
			zap.String("model", string(kind)),
			zap.Int("scenarios", len(outcomes)),
		)
		return nil
	},
}

func init() {
	scenarioCmd.Flags().StringVar(&scenarioDataset, "dataset", "", "dataset name (required)")
	scenarioCmd.Flags().StringVar(&scenarioModel, "model", "production", "model kind: production or attraction")
	scenarioCmd.Flags().StringVar(&scenarioDeterrence, "deterrence", "", "distance decay form: power or exponential")
	scenarioCmd.Flags().StringSliceVar(&scenarioSpecs, "spec", nil, "scenario YAML file (repeatable, required)")
	_ = scenarioCmd.MarkFlagRequired("dataset")
	_ = scenarioCmd.MarkFlagRequired("spec")
	rootCmd.AddCommand(scenarioCmd)
}
