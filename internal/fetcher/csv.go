package fetcher

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/urban-analytics/simflow/internal/model"
)

// FlowCSVOptions configures flow-table CSV parsing.
type FlowCSVOptions struct {
	Delimiter rune // default ','
	// Logged indicates the covariate columns already hold log values.
	// When false, raw attractiveness / size / distance columns are
	// log-transformed on import.
	Logged bool
}

// Column name candidates, matched case-insensitively against the header.
var (
	originNames     = []string{"origin", "orig", "o"}
	destNames       = []string{"dest", "destination", "d"}
	observedNames   = []string{"flow", "observed", "total", "trips"}
	destAttrNames   = []string{"log_dest_attr", "dest_attr", "attractiveness", "wj"}
	originSizeNames = []string{"log_origin_size", "origin_size", "vi"}
	distanceNames   = []string{"log_distance", "distance", "dist"}
)

// ParseFlows reads a long-format OD table from delimited text. The header
// row is required; covariates are log-transformed unless opts.Logged.
func ParseFlows(r io.Reader, opts FlowCSVOptions) ([]model.Flow, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read csv header")
	}

	find := func(candidates []string) int {
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(h))
			for _, c := range candidates {
				if h == c {
					return i
				}
			}
		}
		return -1
	}

	oIdx := find(originNames)
	dIdx := find(destNames)
	fIdx := find(observedNames)
	waIdx := find(destAttrNames)
	osIdx := find(originSizeNames)
	diIdx := find(distanceNames)
	if oIdx < 0 || dIdx < 0 || fIdx < 0 || waIdx < 0 || osIdx < 0 || diIdx < 0 {
		return nil, eris.Errorf("fetcher: csv header %v missing required columns", header)
	}

	transform := func(v float64, name string, line int) (float64, error) {
		if opts.Logged {
			return v, nil
		}
		if v <= 0 {
			return 0, eris.Errorf("fetcher: csv line %d: %s must be positive to log-transform, got %g", line, name, v)
		}
		return math.Log(v), nil
	}

	var flows []model.Flow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: read csv row")
		}
		line++

		parse := func(idx int, name string) (float64, error) {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return 0, eris.Wrapf(err, "fetcher: csv line %d: parse %s", line, name)
			}
			return v, nil
		}

		observed, err := parse(fIdx, "flow")
		if err != nil {
			return nil, err
		}
		if observed < 0 {
			return nil, eris.Errorf("fetcher: csv line %d: negative flow %g", line, observed)
		}

		wa, err := parse(waIdx, "dest attractiveness")
		if err != nil {
			return nil, err
		}
		os, err := parse(osIdx, "origin size")
		if err != nil {
			return nil, err
		}
		di, err := parse(diIdx, "distance")
		if err != nil {
			return nil, err
		}

		if wa, err = transform(wa, "dest attractiveness", line); err != nil {
			return nil, err
		}
		if os, err = transform(os, "origin size", line); err != nil {
			return nil, err
		}
		if di, err = transform(di, "distance", line); err != nil {
			return nil, err
		}

		flows = append(flows, model.Flow{
			Origin:        strings.TrimSpace(record[oIdx]),
			Dest:          strings.TrimSpace(record[dIdx]),
			Observed:      observed,
			LogDestAttr:   wa,
			LogOriginSize: os,
			LogDistance:   di,
		})
	}

	if len(flows) == 0 {
		return nil, eris.New("fetcher: csv has no data rows")
	}
	return flows, nil
}
