// Package neural provides a built-in stand-in for the external learned
// volumetric renderer: an analytic field of Gaussian density blobs rendered
// by ray marching. It implements engine.NeuralRenderer so the binary runs
// end to end without the external process, and tests get a deterministic
// density field.
package neural

import (
	"math"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/trxe/instant-ngp/internal/engine"
)

// Blob is one Gaussian density lobe with its own emission color.
type Blob struct {
	Center  mgl64.Vec3
	Radius  float64
	Density float64
	Color   [3]float64
}

// Field is an analytic volumetric scene.
type Field struct {
	Blobs []Blob

	// Scale divides the requested view resolution; the field renders at
	// its own (usually lower) resolution like the real renderer does.
	Scale float64

	// MarchSteps bounds the per-ray march. More steps, smoother volume.
	MarchSteps int

	Background [3]float64
}

// DefaultField returns a small three-blob scene that reads as a plausible
// volumetric object in front of the camera.
func DefaultField() *Field {
	return &Field{
		Blobs: []Blob{
			{Center: mgl64.Vec3{0, 0.4, -1}, Radius: 0.8, Density: 3.0, Color: [3]float64{0.9, 0.5, 0.3}},
			{Center: mgl64.Vec3{-0.8, 0, -1.5}, Radius: 0.6, Density: 2.0, Color: [3]float64{0.3, 0.6, 0.9}},
			{Center: mgl64.Vec3{0.7, -0.2, -0.8}, Radius: 0.5, Density: 2.5, Color: [3]float64{0.4, 0.9, 0.4}},
		},
		Scale:      0.5,
		MarchSteps: 48,
		Background: [3]float64{0.05, 0.05, 0.08},
	}
}

// QueryDensity sums all blob contributions at a point.
func (f *Field) QueryDensity(p mgl64.Vec3) float64 {
	var sum float64
	for i := range f.Blobs {
		b := &f.Blobs[i]
		d := p.Sub(b.Center)
		distSq := d.Dot(d)
		r2 := b.Radius * b.Radius
		sum += b.Density * math.Exp(-distSq/(2*r2))
	}
	return sum
}

// Render ray-marches the field at the request's camera and returns color and
// depth planes at the field's own resolution. Depth is the transmittance-
// weighted expected depth, MaxRTDist where the ray sees nothing.
func (f *Field) Render(req engine.ViewRequest) (engine.ViewResult, error) {
	scale := f.Scale
	if scale <= 0 {
		scale = 0.5
	}
	w := maxInt(1, int(float64(req.Width)*scale+0.5))
	h := maxInt(1, int(float64(req.Height)*scale+0.5))

	cam := req.Camera
	if req.LensAdjust > 0 && req.LensAdjust != 1 {
		// A focal multiplier narrows the field of view.
		cam.FOV = cam.FOV / req.LensAdjust
	}

	var gen engine.RayGenerator
	gen.Generate(cam, w, h)
	rays := gen.Rays()

	res := engine.ViewResult{
		Width:  w,
		Height: h,
		Color:  make([]float32, w*h*4),
		Depth:  make([]float32, w*h),
	}

	steps := f.MarchSteps
	if steps < 8 {
		steps = 8
	}
	const tMax = 8.0
	step := tMax / float64(steps)

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	rows := make(chan int, h)
	for y := 0; y < h; y++ {
		rows <- y
	}
	close(rows)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rows {
				for x := 0; x < w; x++ {
					idx := y*w + x
					f.marchRay(rays[idx], steps, step, &res, idx)
				}
			}
		}()
	}
	wg.Wait()

	return res, nil
}

func (f *Field) marchRay(r engine.Ray, steps int, step float64, res *engine.ViewResult, idx int) {
	var col [3]float64
	transmittance := 1.0
	var depthSum, weightSum float64

	for i := 0; i < steps; i++ {
		t := (float64(i) + 0.5) * step
		p := r.At(t)

		var density float64
		var emit [3]float64
		for bi := range f.Blobs {
			b := &f.Blobs[bi]
			d := p.Sub(b.Center)
			g := b.Density * math.Exp(-d.Dot(d)/(2*b.Radius*b.Radius))
			density += g
			emit[0] += g * b.Color[0]
			emit[1] += g * b.Color[1]
			emit[2] += g * b.Color[2]
		}
		if density <= 1e-9 {
			continue
		}
		emit[0] /= density
		emit[1] /= density
		emit[2] /= density

		alpha := 1 - math.Exp(-density*step)
		weight := transmittance * alpha
		col[0] += weight * emit[0]
		col[1] += weight * emit[1]
		col[2] += weight * emit[2]
		depthSum += weight * t
		weightSum += weight
		transmittance *= 1 - alpha
		if transmittance < 1e-3 {
			break
		}
	}

	col[0] += transmittance * f.Background[0]
	col[1] += transmittance * f.Background[1]
	col[2] += transmittance * f.Background[2]

	off := idx * 4
	res.Color[off] = float32(col[0])
	res.Color[off+1] = float32(col[1])
	res.Color[off+2] = float32(col[2])
	res.Color[off+3] = float32(1 - transmittance)

	if weightSum > 1e-6 {
		res.Depth[idx] = float32(depthSum / weightSum)
	} else {
		res.Depth[idx] = float32(engine.MaxRTDist)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

var _ engine.NeuralRenderer = (*Field)(nil)
