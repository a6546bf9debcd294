package model

import "sort"

// MatrixFromValues builds a dense matrix from stored OD cell values.
func MatrixFromValues(vals []ODValue) *Matrix {
	oset := map[string]bool{}
	dset := map[string]bool{}
	for _, v := range vals {
		oset[v.Origin] = true
		dset[v.Dest] = true
	}

	m := &Matrix{}
	for o := range oset {
		m.Origins = append(m.Origins, o)
	}
	for d := range dset {
		m.Dests = append(m.Dests, d)
	}
	sort.Strings(m.Origins)
	sort.Strings(m.Dests)

	oidx := make(map[string]int, len(m.Origins))
	for i, o := range m.Origins {
		oidx[o] = i
	}
	didx := make(map[string]int, len(m.Dests))
	for i, d := range m.Dests {
		didx[d] = i
	}

	m.Cells = make([][]float64, len(m.Origins))
	for i := range m.Cells {
		m.Cells[i] = make([]float64, len(m.Dests))
	}
	m.RowTotals = make([]float64, len(m.Origins))
	m.ColTotals = make([]float64, len(m.Dests))

	for _, v := range vals {
		oi, di := oidx[v.Origin], didx[v.Dest]
		m.Cells[oi][di] += v.Value
		m.RowTotals[oi] += v.Value
		m.ColTotals[di] += v.Value
		m.Total += v.Value
	}
	return m
}
