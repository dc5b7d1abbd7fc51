package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ShadowSampler answers secondary visibility queries for a shaded point
// against both representations: the triangle set (nearest-hit occlusion) and
// the external density field (marched accumulation). All intensities and
// thresholds come from Quality and can be retuned between frames.
type ShadowSampler struct {
	Buf     *SceneBuffer
	Density DensityField
	Quality *Quality
}

// Attenuation returns the scalar visibility factor in [0,1] for a point lit
// by the given light: 1 = fully lit, 0 = fully shadowed.
func (s *ShadowSampler) Attenuation(p, n mgl64.Vec3, l *PackedLight) float64 {
	toLight := l.Position.Sub(p)
	dist := toLight.Len()
	if dist <= 1e-9 {
		return 1
	}
	wi := toLight.Mul(1 / dist)

	att := 1.0

	// Triangle occlusion: any hit before the light is full occlusion,
	// soft-scaled by the configured factor. Lights are point sources;
	// transparency and area lights are deliberately not handled.
	origin := p.Add(n.Mul(MinRTDist * 10))
	if s.triangleOccluded(Ray{Orig: origin, Dir: wi}, dist-MinRTDist*20) {
		att *= 1 - s.Quality.ShadowIntensityNerfSyn
	}

	// Density-field shadow from the neural volume.
	att *= 1 - s.densityDarkness(origin, wi, dist)

	if att < 0 {
		att = 0
	}
	return att
}

func (s *ShadowSampler) triangleOccluded(r Ray, maxDist float64) bool {
	if maxDist <= MinRTDist {
		return false
	}
	for i := range s.Buf.Triangles {
		tri := &s.Buf.Triangles[i]
		if _, ok := IntersectTriangle(r, tri.V0, tri.V1, tri.V2, MinRTDist, maxDist); ok {
			return true
		}
	}
	return false
}

// densityDarkness marches the density field along the shadow ray and turns
// the accumulated density into a darkness factor bounded by the configured
// intensity. Sample points closer than the self-shadow threshold to the
// origin are excluded to avoid self-intersection artifacts, and rays whose
// sample variance exceeds the cutoff contribute no shadow at all: noisy
// density is treated as "no shadow" rather than propagated into the image.
func (s *ShadowSampler) densityDarkness(origin, dir mgl64.Vec3, dist float64) float64 {
	intensity := s.Quality.ShadowIntensitySynNerf
	if intensity <= 0 || s.Density == nil {
		return 0
	}

	samples := s.Quality.ShadowSamples
	step := dist / float64(samples)
	if step <= 0 {
		return 0
	}

	var sum, sumSq float64
	counted := 0
	accum := 0.0
	for i := 0; i < samples; i++ {
		t := (float64(i) + 0.5) * step
		if t < s.Quality.SelfShadowThreshold {
			continue
		}
		d := s.Density.QueryDensity(origin.Add(dir.Mul(t)))
		if d < 0 {
			d = 0
		}
		accum += d * step
		sum += d
		sumSq += d * d
		counted++
	}
	if counted == 0 {
		return 0
	}

	mean := sum / float64(counted)
	variance := sumSq/float64(counted) - mean*mean
	if variance > s.Quality.ShadowVarianceCutoff {
		return 0
	}

	return intensity * (1 - math.Exp(-accum))
}

// NeuralShadowPass darkens the neural buffer by triangle shadows: for each
// neural pixel with valid depth, the world point is reconstructed from the
// neural camera and depth (plus the configured depth offset) and tested for
// occlusion against the triangle set toward every light.
func (s *ShadowSampler) NeuralShadowPass(fb *FrameBuffer, rays []Ray, rayW, rayH int) {
	intensity := s.Quality.ShadowIntensityNerfSyn
	if intensity <= 0 || len(s.Buf.Triangles) == 0 || len(s.Buf.Lights) == 0 {
		return
	}

	for y := 0; y < fb.Height; y++ {
		// Map neural pixels onto the ray grid resolution.
		ry := y * rayH / fb.Height
		for x := 0; x < fb.Width; x++ {
			i := y*fb.Width + x
			d := float64(fb.Depth[i]) + s.Quality.DepthOffset
			if d <= MinRTDist || d >= MaxRTDist {
				continue
			}
			rx := x * rayW / fb.Width
			r := rays[ry*rayW+rx]
			p := r.At(d)

			shadowed := false
			for li := range s.Buf.Lights {
				l := &s.Buf.Lights[li]
				toLight := l.Position.Sub(p)
				dist := toLight.Len()
				if dist <= 1e-9 {
					continue
				}
				wi := toLight.Mul(1 / dist)
				if s.triangleOccluded(Ray{Orig: p, Dir: wi}, dist) {
					shadowed = true
					break
				}
			}
			if !shadowed {
				continue
			}
			f := float32(1 - intensity)
			fb.Color[i*4] *= f
			fb.Color[i*4+1] *= f
			fb.Color[i*4+2] *= f
		}
	}
}
