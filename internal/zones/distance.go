package zones

import (
	"math"

	"github.com/urban-analytics/simflow/internal/model"
)

const earthRadiusKM = 6371.0

// HaversineKM is the great-circle distance between two zone centroids.
func HaversineKM(a, b model.Zone) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

// DistanceTable builds the full pairwise centroid distance matrix in km.
// Distances below minKM (intrazonal pairs in particular) are floored to
// minKM so the log transform stays finite.
func DistanceTable(zones []model.Zone, minKM float64) map[string]map[string]float64 {
	if minKM <= 0 {
		minKM = 1.0
	}
	out := make(map[string]map[string]float64, len(zones))
	for _, a := range zones {
		row := make(map[string]float64, len(zones))
		for _, b := range zones {
			d := HaversineKM(a, b)
			if d < minKM {
				d = minKM
			}
			row[b.Code] = d
		}
		out[a.Code] = row
	}
	return out
}
