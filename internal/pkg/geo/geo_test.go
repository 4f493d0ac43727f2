package geo

import (
	"math"
	"testing"
)

func TestHaversineKm_ZeroDistance(t *testing.T) {
	p := Point{Lat: -33.8688, Lon: 151.2093}
	if d := HaversineKm(p, p); d != 0 {
		t.Errorf("distance to self = %f, want 0", d)
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Sydney CBD to Melbourne CBD, roughly 714 km.
	syd := Point{Lat: -33.8688, Lon: 151.2093}
	mel := Point{Lat: -37.8136, Lon: 144.9631}
	d := HaversineKm(syd, mel)
	if d < 700 || d > 730 {
		t.Errorf("Sydney-Melbourne = %f km, want ~714", d)
	}
}

func TestHaversineKm_ShortDistance(t *testing.T) {
	// Approximately 111 m north of the origin point (0.001 deg latitude).
	a := Point{Lat: -33.8688, Lon: 151.2093}
	b := Point{Lat: -33.8688 + 0.001, Lon: 151.2093}
	d := HaversineKm(a, b)
	if math.Abs(d-0.111) > 0.002 {
		t.Errorf("0.001 deg lat = %f km, want ~0.111", d)
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a := Point{Lat: -33.8688, Lon: 151.2093}
	b := Point{Lat: -33.8700, Lon: 151.2100}
	if d1, d2 := HaversineKm(a, b), HaversineKm(b, a); math.Abs(d1-d2) > 1e-12 {
		t.Errorf("asymmetric distance: %f vs %f", d1, d2)
	}
}
