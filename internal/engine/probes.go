package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// maxProbeRes bounds the probe grid so a careless scene file cannot allocate
// an unbounded amount of probe memory.
const maxProbeRes = 32

// ProbeGrid is a resolution-bounded grid of ambient sampling points. Each
// probe stores an "openness" value in [0,1]: 1 means the probe sees no
// density around it, 0 means it is fully embedded in the volume. The grid is
// recomputed on demand, not per frame.
type ProbeGrid struct {
	Min, Max mgl64.Vec3
	Res      int
	Values   []float64
}

// NewProbeGrid allocates a grid over the given bounds. res is clamped to
// [2, maxProbeRes].
func NewProbeGrid(min, max mgl64.Vec3, res int) *ProbeGrid {
	if res < 2 {
		res = 2
	}
	if res > maxProbeRes {
		res = maxProbeRes
	}
	g := &ProbeGrid{Min: min, Max: max, Res: res}
	g.Values = make([]float64, res*res*res)
	for i := range g.Values {
		g.Values[i] = 1
	}
	return g
}

// Recompute probes the density field at every grid point and converts local
// density to openness. Call after the density field or scene bounds change.
func (g *ProbeGrid) Recompute(field DensityField) {
	if field == nil {
		return
	}
	span := g.Max.Sub(g.Min)
	inv := 1 / float64(g.Res-1)
	for z := 0; z < g.Res; z++ {
		for y := 0; y < g.Res; y++ {
			for x := 0; x < g.Res; x++ {
				p := g.Min.Add(mgl64.Vec3{
					span.X() * float64(x) * inv,
					span.Y() * float64(y) * inv,
					span.Z() * float64(z) * inv,
				})
				d := field.QueryDensity(p)
				if d < 0 {
					d = 0
				}
				g.Values[(z*g.Res+y)*g.Res+x] = math.Exp(-d)
			}
		}
	}
}

// Sample returns the trilinearly interpolated openness at a world point,
// clamped to the grid bounds.
func (g *ProbeGrid) Sample(p mgl64.Vec3) float64 {
	span := g.Max.Sub(g.Min)
	rel := p.Sub(g.Min)

	coord := func(v, s float64) float64 {
		if s <= 0 {
			return 0
		}
		c := v / s * float64(g.Res-1)
		if c < 0 {
			return 0
		}
		if c > float64(g.Res-1) {
			return float64(g.Res - 1)
		}
		return c
	}
	cx := coord(rel.X(), span.X())
	cy := coord(rel.Y(), span.Y())
	cz := coord(rel.Z(), span.Z())

	x0, y0, z0 := int(cx), int(cy), int(cz)
	x1, y1, z1 := clampInt(x0+1, 0, g.Res-1), clampInt(y0+1, 0, g.Res-1), clampInt(z0+1, 0, g.Res-1)
	tx, ty, tz := cx-float64(x0), cy-float64(y0), cz-float64(z0)

	at := func(x, y, z int) float64 { return g.Values[(z*g.Res+y)*g.Res+x] }
	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }

	c00 := lerp(at(x0, y0, z0), at(x1, y0, z0), tx)
	c10 := lerp(at(x0, y1, z0), at(x1, y1, z0), tx)
	c01 := lerp(at(x0, y0, z1), at(x1, y0, z1), tx)
	c11 := lerp(at(x0, y1, z1), at(x1, y1, z1), tx)
	return lerp(lerp(c00, c10, ty), lerp(c01, c11, ty), tz)
}
