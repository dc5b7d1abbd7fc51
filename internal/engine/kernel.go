package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Ray-march distance bounds shared by the CPU kernel and the GPU shader.
// MaxRTDist doubles as the "no hit" depth sentinel.
const (
	MinRTDist = 1e-4
	MaxRTDist = 1e4
)

// Hit records the nearest valid intersection for one ray.
type Hit struct {
	T        float64
	P        mgl64.Vec3
	N        mgl64.Vec3 // faces the incoming ray
	Material int
}

// IntersectTriangle computes the Möller–Trumbore ray/triangle intersection
// parameter. ok is false for parallel rays, hits outside the barycentric
// bounds, and hits outside (tMin, tMax).
func IntersectTriangle(r Ray, v0, v1, v2 mgl64.Vec3, tMin, tMax float64) (float64, bool) {
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	p := r.Dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < 1e-12 {
		return 0, false
	}
	invDet := 1 / det
	s := r.Orig.Sub(v0)
	u := s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * invDet
	if t <= tMin || t >= tMax {
		return 0, false
	}
	return t, true
}

// Kernel is the intersection & shading stage. It iterates every triangle in
// the current scene buffer per pixel; any scale-up needs a spatial
// acceleration structure.
type Kernel struct {
	Buf     *SceneBuffer
	Shadow  *ShadowSampler
	Probes  *ProbeGrid
	Quality *Quality
}

// Nearest returns the closest hit strictly inside (MinRTDist, tMax). The
// comparison is strictly-less-than, so with equal t the first enumerated
// triangle wins.
func (k *Kernel) Nearest(r Ray, tMax float64) (Hit, bool) {
	var hit Hit
	closest := tMax
	found := false
	for i := range k.Buf.Triangles {
		tri := &k.Buf.Triangles[i]
		t, ok := IntersectTriangle(r, tri.V0, tri.V1, tri.V2, MinRTDist, closest)
		if !ok {
			continue
		}
		closest = t
		found = true
		hit.T = t
		hit.P = r.At(t)
		hit.Material = tri.Material
		if tri.N.Dot(r.Dir) > 0 {
			hit.N = tri.N.Mul(-1)
		} else {
			hit.N = tri.N
		}
	}
	return hit, found
}

// Occluded reports whether any triangle blocks the ray before maxDist.
func (k *Kernel) Occluded(r Ray, maxDist float64) bool {
	for i := range k.Buf.Triangles {
		tri := &k.Buf.Triangles[i]
		if _, ok := IntersectTriangle(r, tri.V0, tri.V1, tri.V2, MinRTDist, maxDist); ok {
			return true
		}
	}
	return false
}

// Shade traces one primary ray and returns the synthetic color+alpha and the
// depth value for its pixel. Misses produce the clear color with zero alpha
// and the MaxRTDist sentinel so the compositor lets the neural buffer
// through.
func (k *Kernel) Shade(r Ray) (rgba [4]float32, depth float32) {
	hit, ok := k.Nearest(r, MaxRTDist)
	if !ok {
		c := k.Quality.ClearColor
		return [4]float32{float32(c.R), float32(c.G), float32(c.B), 0}, float32(MaxRTDist)
	}

	switch k.Quality.Filter {
	case FilterDepth:
		// Reciprocal mapping keeps nearby geometry readable.
		v := float32(1 / (1 + hit.T))
		return [4]float32{v, v, v, 1}, float32(hit.T)
	case FilterNormals:
		return [4]float32{
			float32(hit.N.X()*0.5 + 0.5),
			float32(hit.N.Y()*0.5 + 0.5),
			float32(hit.N.Z()*0.5 + 0.5),
			1,
		}, float32(hit.T)
	case FilterShadow:
		att := 1.0
		for li := range k.Buf.Lights {
			att = math.Min(att, k.Shadow.Attenuation(hit.P, hit.N, &k.Buf.Lights[li]))
		}
		v := float32(att)
		return [4]float32{v, v, v, 1}, float32(hit.T)
	}

	albedo := [3]float64{0.8, 0.8, 0.8}
	rough := 0.0
	if hit.Material >= 0 && hit.Material < len(k.Buf.Materials) {
		m := &k.Buf.Materials[hit.Material]
		albedo = m.Albedo
		rough = m.Roughness
	}

	var out [3]float64
	for li := range k.Buf.Lights {
		l := &k.Buf.Lights[li]
		toLight := l.Position.Sub(hit.P)
		distSq := toLight.Dot(toLight)
		if distSq <= 1e-12 {
			continue
		}
		dist := math.Sqrt(distSq)
		wi := toLight.Mul(1 / dist)

		nDotL := hit.N.Dot(wi)
		if nDotL <= 0 {
			continue
		}

		att := k.Shadow.Attenuation(hit.P, hit.N, l)
		scale := nDotL * att * l.Intensity / distSq
		out[0] += albedo[0] * l.Color[0] * scale
		out[1] += albedo[1] * l.Color[1] * scale
		out[2] += albedo[2] * l.Color[2] * scale
	}

	// Ambient from the probe grid, darkened by the AO-like intensity.
	// Roughness only dampens the ambient term for now.
	if k.Probes != nil {
		open := k.Probes.Sample(hit.P)
		amb := ambientBase * (1 - rough*0.5) * (1 - k.Quality.ShadowIntensityAO*(1-open))
		out[0] += albedo[0] * amb
		out[1] += albedo[1] * amb
		out[2] += albedo[2] * amb
	}

	return [4]float32{
		float32(clamp01(out[0])),
		float32(clamp01(out[1])),
		float32(clamp01(out[2])),
		1,
	}, float32(hit.T)
}

// ambientBase is the sky ambient level before probe occlusion.
const ambientBase = 0.1

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
