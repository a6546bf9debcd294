package fetcher

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlowsRawCovariates(t *testing.T) {
	input := `origin,dest,flow,attractiveness,origin_size,distance
A,X,120,200,1000,12
A,Y,45,450,1000,25
B,X,60,200,2000,18
`
	flows, err := ParseFlows(strings.NewReader(input), FlowCSVOptions{})
	require.NoError(t, err)
	require.Len(t, flows, 3)

	f := flows[0]
	assert.Equal(t, "A", f.Origin)
	assert.Equal(t, "X", f.Dest)
	assert.Equal(t, 120.0, f.Observed)
	assert.InDelta(t, math.Log(200), f.LogDestAttr, 1e-12)
	assert.InDelta(t, math.Log(1000), f.LogOriginSize, 1e-12)
	assert.InDelta(t, math.Log(12), f.LogDistance, 1e-12)
}

func TestParseFlowsLogged(t *testing.T) {
	input := `origin,dest,flow,log_dest_attr,log_origin_size,log_distance
A,X,120,5.3,6.9,2.48
`
	flows, err := ParseFlows(strings.NewReader(input), FlowCSVOptions{Logged: true})
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, 5.3, flows[0].LogDestAttr)
	assert.Equal(t, 2.48, flows[0].LogDistance)
}

func TestParseFlowsAlternateHeaderNames(t *testing.T) {
	input := `Orig,Destination,Trips,Wj,Vi,Dist
A,X,10,2,3,4
`
	flows, err := ParseFlows(strings.NewReader(input), FlowCSVOptions{})
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "A", flows[0].Origin)
	assert.Equal(t, "X", flows[0].Dest)
	assert.Equal(t, 10.0, flows[0].Observed)
}

func TestParseFlowsSemicolonDelimiter(t *testing.T) {
	input := "origin;dest;flow;attractiveness;origin_size;distance\nA;X;5;2;3;4\n"
	flows, err := ParseFlows(strings.NewReader(input), FlowCSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	require.Len(t, flows, 1)
}

func TestParseFlowsMissingColumn(t *testing.T) {
	input := "origin,dest,flow\nA,X,5\n"
	_, err := ParseFlows(strings.NewReader(input), FlowCSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
}

func TestParseFlowsNegativeFlow(t *testing.T) {
	input := "origin,dest,flow,attractiveness,origin_size,distance\nA,X,-5,2,3,4\n"
	_, err := ParseFlows(strings.NewReader(input), FlowCSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative flow")
}

func TestParseFlowsNonPositiveCovariate(t *testing.T) {
	input := "origin,dest,flow,attractiveness,origin_size,distance\nA,X,5,0,3,4\n"
	_, err := ParseFlows(strings.NewReader(input), FlowCSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive to log-transform")
}

func TestParseFlowsBadNumber(t *testing.T) {
	input := "origin,dest,flow,attractiveness,origin_size,distance\nA,X,many,2,3,4\n"
	_, err := ParseFlows(strings.NewReader(input), FlowCSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseFlowsNoDataRows(t *testing.T) {
	input := "origin,dest,flow,attractiveness,origin_size,distance\n"
	_, err := ParseFlows(strings.NewReader(input), FlowCSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}
