package model

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Flow is one origin-destination pair: the observed count plus the
// log-transformed covariates the gravity models regress on.
type Flow struct {
	Origin        string  `json:"origin"`
	Dest          string  `json:"dest"`
	Observed      float64 `json:"observed"`
	LogDestAttr   float64 `json:"log_dest_attr"`   // log destination attractiveness
	LogOriginSize float64 `json:"log_origin_size"` // log origin size
	LogDistance   float64 `json:"log_distance"`
}

// ODValue is a single cell of an estimated flow matrix.
type ODValue struct {
	Origin string  `json:"origin"`
	Dest   string  `json:"dest"`
	Value  float64 `json:"value"`
}

// FlowTable holds the long-format OD table for one dataset. Rows keep
// their insertion order; zone name slices are sorted.
type FlowTable struct {
	Dataset string
	Rows    []Flow

	origins []string
	dests   []string
}

// NewFlowTable builds a table from rows and indexes the zone codes.
func NewFlowTable(dataset string, rows []Flow) *FlowTable {
	t := &FlowTable{Dataset: dataset, Rows: rows}
	t.reindex()
	return t
}

func (t *FlowTable) reindex() {
	oset := map[string]bool{}
	dset := map[string]bool{}
	for _, r := range t.Rows {
		oset[r.Origin] = true
		dset[r.Dest] = true
	}
	t.origins = t.origins[:0]
	t.dests = t.dests[:0]
	for o := range oset {
		t.origins = append(t.origins, o)
	}
	for d := range dset {
		t.dests = append(t.dests, d)
	}
	sort.Strings(t.origins)
	sort.Strings(t.dests)
}

// Origins returns the sorted origin zone codes.
func (t *FlowTable) Origins() []string { return t.origins }

// Dests returns the sorted destination zone codes.
func (t *FlowTable) Dests() []string { return t.dests }

// Len returns the number of OD rows.
func (t *FlowTable) Len() int { return len(t.Rows) }

// Observed returns the observed flow column in row order.
func (t *FlowTable) Observed() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Observed
	}
	return out
}

// OriginTotals returns O_i, the observed total flow out of each origin.
func (t *FlowTable) OriginTotals() map[string]float64 {
	out := make(map[string]float64, len(t.origins))
	for _, r := range t.Rows {
		out[r.Origin] += r.Observed
	}
	return out
}

// DestTotals returns D_j, the observed total flow into each destination.
func (t *FlowTable) DestTotals() map[string]float64 {
	out := make(map[string]float64, len(t.dests))
	for _, r := range t.Rows {
		out[r.Dest] += r.Observed
	}
	return out
}

// Clone returns a deep copy of the table. Scenario analysis perturbs the
// copy and leaves the source table untouched.
func (t *FlowTable) Clone() *FlowTable {
	rows := make([]Flow, len(t.Rows))
	copy(rows, t.Rows)
	return NewFlowTable(t.Dataset, rows)
}

// Matrix is a dense origin x destination view of a flow column, with
// marginal totals.
type Matrix struct {
	Origins   []string    `json:"origins"`
	Dests     []string    `json:"dests"`
	Cells     [][]float64 `json:"cells"` // [origin][dest]
	RowTotals []float64   `json:"row_totals"`
	ColTotals []float64   `json:"col_totals"`
	Total     float64     `json:"total"`
}

// Pivot reshapes a column of per-row values (aligned with t.Rows) into a
// dense matrix. Missing OD pairs stay zero; duplicate pairs accumulate.
func (t *FlowTable) Pivot(values []float64) (*Matrix, error) {
	if len(values) != len(t.Rows) {
		return nil, eris.Errorf("model: pivot: %d values for %d rows", len(values), len(t.Rows))
	}

	oidx := make(map[string]int, len(t.origins))
	for i, o := range t.origins {
		oidx[o] = i
	}
	didx := make(map[string]int, len(t.dests))
	for i, d := range t.dests {
		didx[d] = i
	}

	m := &Matrix{
		Origins:   t.origins,
		Dests:     t.dests,
		Cells:     make([][]float64, len(t.origins)),
		RowTotals: make([]float64, len(t.origins)),
		ColTotals: make([]float64, len(t.dests)),
	}
	for i := range m.Cells {
		m.Cells[i] = make([]float64, len(t.dests))
	}

	for i, r := range t.Rows {
		oi, di := oidx[r.Origin], didx[r.Dest]
		m.Cells[oi][di] += values[i]
		m.RowTotals[oi] += values[i]
		m.ColTotals[di] += values[i]
		m.Total += values[i]
	}
	return m, nil
}

// PivotObserved pivots the observed flow column.
func (t *FlowTable) PivotObserved() (*Matrix, error) {
	return t.Pivot(t.Observed())
}
