// Package model defines the core domain types: zones, origin-destination
// flows, the in-memory flow table, and persisted run records.
package model

// Zone is a geographic zone between which flows are modelled.
type Zone struct {
	Code string  `json:"code"`
	Name string  `json:"name,omitempty"`
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
	Geom []byte  `json:"-"` // EWKB, optional
}
