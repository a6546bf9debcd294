package zones

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/urban-analytics/simflow/internal/model"
)

func TestHaversineKM(t *testing.T) {
	london := model.Zone{Code: "LON", Lon: -0.1278, Lat: 51.5074}
	paris := model.Zone{Code: "PAR", Lon: 2.3522, Lat: 48.8566}

	d := HaversineKM(london, paris)
	assert.InDelta(t, 344, d, 5)

	// Symmetric, zero on the diagonal.
	assert.InDelta(t, d, HaversineKM(paris, london), 1e-9)
	assert.Equal(t, 0.0, HaversineKM(london, london))
}

func TestDistanceTable(t *testing.T) {
	zones := []model.Zone{
		{Code: "A", Lon: 0, Lat: 0},
		{Code: "B", Lon: 1, Lat: 0},
		{Code: "C", Lon: 0, Lat: 1},
	}

	tab := DistanceTable(zones, 1.0)
	assert.Len(t, tab, 3)

	// Intrazonal distances are floored so log stays finite.
	assert.Equal(t, 1.0, tab["A"]["A"])
	assert.Greater(t, tab["A"]["B"], 100.0)
	assert.InDelta(t, tab["A"]["B"], tab["B"]["A"], 1e-9)

	// One degree of longitude at the equator is about 111 km.
	assert.InDelta(t, 111.2, tab["A"]["B"], 1.0)
}

func TestDistanceTableDefaultFloor(t *testing.T) {
	zones := []model.Zone{
		{Code: "A", Lon: 0, Lat: 0},
		{Code: "B", Lon: 0.001, Lat: 0},
	}

	tab := DistanceTable(zones, 0)
	assert.Equal(t, 1.0, tab["A"]["B"]) // ~0.11 km floored to the 1 km default
}
