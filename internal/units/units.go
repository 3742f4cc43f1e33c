// Package units converts between ODE concentrations and CME particle counts
// and derives cell geometry from membrane surface area.
package units

import (
	"fmt"
	"math"

	"github.com/san-kum/cmeode/internal/species"
)

const (
	Avogadro = 6.022e23

	// VolumeCapL is the doubled Syn3A volume; growth stops here.
	VolumeCapL = 6.70e-17

	// VolumeScale converts litres to the integer CellV unit (1e-19 L).
	VolumeScale = 1e19

	ScaledVolumeCap = 670

	SurfaceAreaSpecies = "CellSA"
	VolumeSpecies      = "CellV"
)

// Geometry is the derived size of the cell for one tick.
type Geometry struct {
	SurfaceArea float64 // nm^2
	VolumeL     float64
	CellV       int64 // units of 1e-19 L
	Capped      bool
}

// RadiusForSurfaceArea returns the radius in metres of a sphere with the
// given surface area in nm^2.
func RadiusForSurfaceArea(sa float64) float64 {
	return math.Sqrt(sa/4/math.Pi) * 1e-9
}

// SurfaceAreaForVolume returns the surface area in nm^2 of a sphere holding
// vL litres.
func SurfaceAreaForVolume(vL float64) float64 {
	r := math.Cbrt(vL / 1000 * 3 / (4 * math.Pi))
	rNm := r * 1e9
	return 4 * math.Pi * rNm * rNm
}

// ComputeGeometry derives the spherical volume for a surface area. Once prev
// is capped the volume stays at the cap for the rest of the replicate.
func ComputeGeometry(sa float64, prev Geometry) Geometry {
	g := Geometry{SurfaceArea: sa}
	if prev.Capped {
		g.VolumeL = VolumeCapL
		g.CellV = ScaledVolumeCap
		g.Capped = true
		return g
	}

	r := RadiusForSurfaceArea(sa)
	v := (4.0 / 3.0) * math.Pi * r * r * r * 1000
	if v > VolumeCapL {
		g.VolumeL = VolumeCapL
		g.CellV = ScaledVolumeCap
		g.Capped = true
		return g
	}
	g.VolumeL = v
	g.CellV = int64(math.Round(v * VolumeScale))
	return g
}

// GeometryOf reads CellSA from s and computes the geometry.
func GeometryOf(s *species.State, prev Geometry) (Geometry, error) {
	sa, err := s.Count(SurfaceAreaSpecies)
	if err != nil {
		return Geometry{}, fmt.Errorf("cell geometry: %w", err)
	}
	return ComputeGeometry(float64(sa), prev), nil
}

// ApplyGeometry writes CellV into s.
func ApplyGeometry(s *species.State, g Geometry) error {
	if err := s.SetCount(VolumeSpecies, g.CellV); err != nil {
		return fmt.Errorf("cell geometry: %w", err)
	}
	return nil
}

// ConcentrationToParticles converts mM to a particle count in a cell of
// geometry g. Negative concentrations from integrator undershoot map to 0.
func ConcentrationToParticles(mM float64, g Geometry) int64 {
	n := math.Round((mM / 1000) * Avogadro * g.VolumeL)
	if n <= 0 {
		return 0
	}
	return int64(n)
}

func ParticlesToConcentration(n int64, g Geometry) float64 {
	if g.VolumeL <= 0 {
		return 0
	}
	return float64(n) / Avogadro / g.VolumeL * 1000
}
