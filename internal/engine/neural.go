package engine

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/trxe/instant-ngp/internal/scene"
)

// ViewRequest is the value type handed to the external neural renderer once
// per frame. The core owns this type; the renderer's internal view state is
// never touched directly.
type ViewRequest struct {
	Camera scene.Camera

	Width  int
	Height int

	// LensAdjust is a focal-length multiplier; 1 renders with the camera's
	// nominal field of view.
	LensAdjust float64
}

// ViewResult is the neural renderer's output buffer for one frame: color and
// depth planes at the renderer's own resolution.
type ViewResult struct {
	Width  int
	Height int
	Color  []float32 // RGBA, len = Width*Height*4
	Depth  []float32 // len = Width*Height, in the same units as ray t
}

// NeuralRenderer is the boundary to the external learned volumetric
// renderer. The core only issues render requests and point density probes;
// it never mutates the renderer's internal state.
type NeuralRenderer interface {
	Render(req ViewRequest) (ViewResult, error)
	QueryDensity(p mgl64.Vec3) float64
}

// DensityField is the subset of NeuralRenderer the shadow sampler needs.
type DensityField interface {
	QueryDensity(p mgl64.Vec3) float64
}
