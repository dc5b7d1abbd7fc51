package engine

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/trxe/instant-ngp/internal/scene"
)

// FilterMode selects what the kernel writes into the synthetic color plane.
type FilterMode int

const (
	FilterShaded FilterMode = iota
	FilterDepth
	FilterNormals
	FilterShadow
)

// ParseFilterMode maps a scene-file filter name to its mode. Unknown names
// fall back to shaded output.
func ParseFilterMode(name string) FilterMode {
	switch strings.ToLower(name) {
	case "depth":
		return FilterDepth
	case "normals":
		return FilterNormals
	case "shadow":
		return FilterShadow
	default:
		return FilterShaded
	}
}

// Quality bundles every runtime-tunable render parameter. All fields can be
// retuned between frames without recompilation; the renderer treats any
// change as a reason to reset accumulation.
type Quality struct {
	// Shadow intensities per cross-representation case.
	ShadowIntensitySynNerf float64 // density-field shadow on synthetic points
	ShadowIntensityAO      float64 // ambient probe occlusion
	ShadowIntensityNerfSyn float64 // triangle shadow on neural pixels

	SelfShadowThreshold  float64 // skip density samples closer than this to the origin
	ShadowVarianceCutoff float64 // discard density shadows noisier than this
	ShadowSamples        int     // density samples per shadow ray

	RayDepth int // iteration depth for the intersection loop

	SynScale    float64 // synthetic resolution relative to display resolution
	DepthOffset float64 // added to neural depth before reconstruction
	LensAdjust  float64 // focal-length multiplier applied to the neural view

	// Foveation warp shape: switch points in [0,1] and the edge/center
	// slope ratio (>= 1). FoveaStart=0, FoveaEnd=1 is the identity warp.
	FoveaStart float64
	FoveaEnd   float64
	FoveaEdge  float64

	ImgCountMax int // recording stops after this many frames

	Filter     FilterMode
	ClearColor scene.Color
}

// DefaultQuality returns the tuning used when the scene file omits a key.
func DefaultQuality() Quality {
	return Quality{
		ShadowIntensitySynNerf: 0.8,
		ShadowIntensityAO:      0.3,
		ShadowIntensityNerfSyn: 0.6,
		SelfShadowThreshold:    0.05,
		ShadowVarianceCutoff:   0.5,
		ShadowSamples:          16,
		RayDepth:               1,
		SynScale:               1.0,
		DepthOffset:            0,
		LensAdjust:             1.0,
		FoveaStart:             0,
		FoveaEnd:               1,
		FoveaEdge:              2.0,
		ImgCountMax:            100,
	}
}

// applyTable copies recognized keys from a name/value table onto q. Unknown
// keys are ignored, missing keys keep their current value.
func (q Quality) applyTable(table map[string]float64) Quality {
	get := func(key string, dst *float64) {
		if v, ok := table[key]; ok {
			*dst = v
		}
	}
	getInt := func(key string, dst *int) {
		if v, ok := table[key]; ok && v >= 0 {
			*dst = int(v)
		}
	}

	get("shadow_intensity_syn_nerf", &q.ShadowIntensitySynNerf)
	get("shadow_intensity_ao", &q.ShadowIntensityAO)
	get("shadow_intensity_nerf_syn", &q.ShadowIntensityNerfSyn)
	get("self_shadow_threshold", &q.SelfShadowThreshold)
	get("shadow_variance_cutoff", &q.ShadowVarianceCutoff)
	getInt("shadow_samples", &q.ShadowSamples)
	getInt("ray_depth", &q.RayDepth)
	get("syn_scale", &q.SynScale)
	get("depth_offset", &q.DepthOffset)
	get("lens_adjust", &q.LensAdjust)
	get("fovea_start", &q.FoveaStart)
	get("fovea_end", &q.FoveaEnd)
	get("fovea_edge", &q.FoveaEdge)
	getInt("img_count_max", &q.ImgCountMax)
	return q.Clamped()
}

// ApplyTable layers a name/value table over q. Keys match the scene quality
// table; UIs and remote controls use this for live retuning.
func (q Quality) ApplyTable(table map[string]float64) Quality {
	return q.applyTable(table)
}

// QualityFromScene merges the scene's named quality table over the defaults.
func QualityFromScene(sc *scene.Scene) Quality {
	q := DefaultQuality()
	q.Filter = ParseFilterMode(sc.Filter)
	q.ClearColor = sc.ClearColor
	return q.applyTable(sc.Quality)
}

// Clamped returns a copy with every parameter forced into its valid range.
func (q Quality) Clamped() Quality {
	clamp01 := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	q.ShadowIntensitySynNerf = clamp01(q.ShadowIntensitySynNerf)
	q.ShadowIntensityAO = clamp01(q.ShadowIntensityAO)
	q.ShadowIntensityNerfSyn = clamp01(q.ShadowIntensityNerfSyn)
	if q.SelfShadowThreshold < 0 {
		q.SelfShadowThreshold = 0
	}
	if q.ShadowVarianceCutoff < 0 {
		q.ShadowVarianceCutoff = 0
	}
	if q.ShadowSamples < 1 {
		q.ShadowSamples = 1
	}
	if q.RayDepth < 1 {
		q.RayDepth = 1
	}
	if q.SynScale <= 0 {
		q.SynScale = 1
	}
	if q.LensAdjust <= 0 {
		q.LensAdjust = 1
	}
	q.FoveaStart = clamp01(q.FoveaStart)
	q.FoveaEnd = clamp01(q.FoveaEnd)
	if q.FoveaEnd < q.FoveaStart {
		q.FoveaStart, q.FoveaEnd = q.FoveaEnd, q.FoveaStart
	}
	if q.FoveaEdge < 1 {
		q.FoveaEdge = 1
	}
	if q.ImgCountMax < 0 {
		q.ImgCountMax = 0
	}
	return q
}

var (
	envQualityOnce sync.Once
	envQuality     map[string]float64
)

// envQualityOverrides reads HYBRID_Q_<KEY>=<float> environment variables once
// and returns them keyed like the scene quality table, e.g.
// HYBRID_Q_SHADOW_SAMPLES=32 overrides shadow_samples.
func envQualityOverrides() map[string]float64 {
	envQualityOnce.Do(func() {
		envQuality = make(map[string]float64)
		for _, kv := range os.Environ() {
			eq := strings.IndexByte(kv, '=')
			if eq < 0 || !strings.HasPrefix(kv, "HYBRID_Q_") {
				continue
			}
			key := strings.ToLower(strings.TrimPrefix(kv[:eq], "HYBRID_Q_"))
			if f, err := strconv.ParseFloat(kv[eq+1:], 64); err == nil {
				envQuality[key] = f
			}
		}
	})
	return envQuality
}

// ApplyEnvOverrides layers the environment table over q.
func (q Quality) ApplyEnvOverrides() Quality {
	return q.applyTable(envQualityOverrides())
}
