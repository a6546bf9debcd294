// Package scenario evaluates what-if perturbations of a fitted gravity
// model: scale a zone's attractiveness (or origin size, or override the
// distance decay), hold the fitted coefficients, recompute balancing
// factors, and compare the redistributed flows against the baseline.
package scenario

import (
	"context"
	"math"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/urban-analytics/simflow/internal/model"
	"github.com/urban-analytics/simflow/internal/sim"
)

// Spec is one scenario, loaded from YAML.
type Spec struct {
	Name string `yaml:"name"`
	// AttractivenessScale multiplies destination attractiveness per zone
	// code. Applies to production-constrained fits.
	AttractivenessScale map[string]float64 `yaml:"attractiveness_scale"`
	// OriginSizeScale multiplies origin size per zone code. Applies to
	// attraction-constrained fits.
	OriginSizeScale map[string]float64 `yaml:"origin_size_scale"`
	// DistanceDecay overrides the fitted beta when set.
	DistanceDecay *float64 `yaml:"distance_decay"`
}

// Load reads a scenario spec from a YAML file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scenario: read %s", path)
	}
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "scenario: parse %s", path)
	}
	if s.Name == "" {
		return nil, eris.Errorf("scenario: %s: name is required", path)
	}
	for zone, scale := range s.AttractivenessScale {
		if scale <= 0 {
			return nil, eris.Errorf("scenario: %s: attractiveness scale for %s must be positive", s.Name, zone)
		}
	}
	for zone, scale := range s.OriginSizeScale {
		if scale <= 0 {
			return nil, eris.Errorf("scenario: %s: origin size scale for %s must be positive", s.Name, zone)
		}
	}
	return &s, nil
}

// ZoneChange is the flow-total shift at one zone.
type ZoneChange struct {
	Zone     string  `json:"zone"`
	Base     float64 `json:"base"`
	Scenario float64 `json:"scenario"`
	Delta    float64 `json:"delta"`
}

// Outcome compares a scenario against the fitted baseline.
type Outcome struct {
	Name     string        `json:"name"`
	Base     *model.Matrix `json:"base"`
	Scenario *model.Matrix `json:"scenario"`
	// Changes reports destination-total shifts for production-constrained
	// fits and origin-total shifts for attraction-constrained fits,
	// sorted by zone code.
	Changes []ZoneChange `json:"changes"`
}

// Evaluate applies a scenario to a fitted model. The fitted coefficients
// stay fixed; only the perturbed inputs and the balancing factors change.
func Evaluate(f *sim.Fitted, spec *Spec) (*Outcome, error) {
	switch f.Spec.Kind {
	case sim.KindProduction:
		if len(spec.OriginSizeScale) > 0 {
			return nil, eris.Errorf("scenario: %s scales origin size but the fit is production-constrained", spec.Name)
		}
	case sim.KindAttraction:
		if len(spec.AttractivenessScale) > 0 {
			return nil, eris.Errorf("scenario: %s scales attractiveness but the fit is attraction-constrained", spec.Name)
		}
	default:
		return nil, eris.Errorf("scenario: model kind %s does not support scenarios", f.Spec.Kind)
	}

	perturbed := f.Table.Clone()
	for i := range perturbed.Rows {
		r := &perturbed.Rows[i]
		if s, ok := spec.AttractivenessScale[r.Dest]; ok {
			r.LogDestAttr += math.Log(s)
		}
		if s, ok := spec.OriginSizeScale[r.Origin]; ok {
			r.LogOriginSize += math.Log(s)
		}
	}

	beta := f.Beta
	if spec.DistanceDecay != nil {
		beta = *spec.DistanceDecay
	}

	var est []float64
	if f.Spec.Kind == sim.KindProduction {
		est, _ = sim.ReconstructProduction(perturbed, f.Gamma, beta, f.Spec.Deterrence)
	} else {
		est, _ = sim.ReconstructAttraction(perturbed, f.Alpha, beta, f.Spec.Deterrence)
	}

	base, err := f.EstimateMatrix()
	if err != nil {
		return nil, eris.Wrap(err, "scenario: pivot baseline")
	}
	scen, err := perturbed.Pivot(est)
	if err != nil {
		return nil, eris.Wrap(err, "scenario: pivot scenario")
	}

	out := &Outcome{Name: spec.Name, Base: base, Scenario: scen}
	if f.Spec.Kind == sim.KindProduction {
		for j, d := range base.Dests {
			out.Changes = append(out.Changes, ZoneChange{
				Zone:     d,
				Base:     base.ColTotals[j],
				Scenario: scen.ColTotals[j],
				Delta:    scen.ColTotals[j] - base.ColTotals[j],
			})
		}
	} else {
		for i, o := range base.Origins {
			out.Changes = append(out.Changes, ZoneChange{
				Zone:     o,
				Base:     base.RowTotals[i],
				Scenario: scen.RowTotals[i],
				Delta:    scen.RowTotals[i] - base.RowTotals[i],
			})
		}
	}
	sort.Slice(out.Changes, func(i, j int) bool { return out.Changes[i].Zone < out.Changes[j].Zone })
	return out, nil
}

// EvaluateAll runs several scenarios concurrently, preserving input order.
func EvaluateAll(ctx context.Context, f *sim.Fitted, specs []*Spec, concurrency int) ([]*Outcome, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	outcomes := make([]*Outcome, len(specs))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			o, err := Evaluate(f, spec)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
