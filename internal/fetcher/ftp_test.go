package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	host, path, err := parseFTPURL("ftp://ftp2.census.gov/geo/tiger/file.zip")
	require.NoError(t, err)
	assert.Equal(t, "ftp2.census.gov:21", host)
	assert.Equal(t, "/geo/tiger/file.zip", path)
}

func TestParseFTPURLExplicitPort(t *testing.T) {
	host, path, err := parseFTPURL("ftp://example.com:2121/data.csv")
	require.NoError(t, err)
	assert.Equal(t, "example.com:2121", host)
	assert.Equal(t, "/data.csv", path)
}

func TestParseFTPURLWrongScheme(t *testing.T) {
	_, _, err := parseFTPURL("https://example.com/data.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected ftp scheme")
}

func TestParseFTPURLEmptyPath(t *testing.T) {
	_, _, err := parseFTPURL("ftp://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty path")
}
