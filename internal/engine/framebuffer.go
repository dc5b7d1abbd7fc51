package engine

import "math"

// FrameBuffer is a CPU-resident render target: a 4-channel color plane and a
// 1-channel depth plane at one resolution. Synthetic and neural buffers may
// differ in resolution; a buffer is never read while its producer pass is
// still writing it.
type FrameBuffer struct {
	Width  int
	Height int
	Color  []float32 // RGBA, len = Width*Height*4
	Depth  []float32 // len = Width*Height
}

// NewFrameBuffer allocates a buffer at the given resolution.
func NewFrameBuffer(w, h int) *FrameBuffer {
	fb := &FrameBuffer{}
	fb.Resize(w, h)
	return fb
}

// Resize grows the planes to fit the new resolution. Allocations only grow;
// shrinking a buffer reuses the existing backing arrays so per-frame resizes
// do not thrash the allocator.
func (fb *FrameBuffer) Resize(w, h int) {
	fb.Width = w
	fb.Height = h
	n := w * h
	if cap(fb.Color) < n*4 {
		fb.Color = make([]float32, n*4)
	} else {
		fb.Color = fb.Color[:n*4]
	}
	if cap(fb.Depth) < n {
		fb.Depth = make([]float32, n)
	} else {
		fb.Depth = fb.Depth[:n]
	}
}

// Clear fills the color plane with the given RGBA value and the depth plane
// with the given depth.
func (fb *FrameBuffer) Clear(r, g, b, a, depth float32) {
	for i := 0; i < len(fb.Color); i += 4 {
		fb.Color[i] = r
		fb.Color[i+1] = g
		fb.Color[i+2] = b
		fb.Color[i+3] = a
	}
	for i := range fb.Depth {
		fb.Depth[i] = depth
	}
}

// At returns the color at integer pixel coordinates, clamped to the buffer.
func (fb *FrameBuffer) At(x, y int) (r, g, b, a float32) {
	x = clampInt(x, 0, fb.Width-1)
	y = clampInt(y, 0, fb.Height-1)
	i := (y*fb.Width + x) * 4
	return fb.Color[i], fb.Color[i+1], fb.Color[i+2], fb.Color[i+3]
}

// DepthAt returns the depth at integer pixel coordinates, clamped to the buffer.
func (fb *FrameBuffer) DepthAt(x, y int) float32 {
	x = clampInt(x, 0, fb.Width-1)
	y = clampInt(y, 0, fb.Height-1)
	return fb.Depth[y*fb.Width+x]
}

// SampleNearest samples the color plane at normalized coordinates in [0,1]².
func (fb *FrameBuffer) SampleNearest(u, v float64) (r, g, b, a float32) {
	x := int(u * float64(fb.Width))
	y := int(v * float64(fb.Height))
	return fb.At(x, y)
}

// SampleDepthNearest samples the depth plane at normalized coordinates.
func (fb *FrameBuffer) SampleDepthNearest(u, v float64) float32 {
	x := int(u * float64(fb.Width))
	y := int(v * float64(fb.Height))
	return fb.DepthAt(x, y)
}

// SampleLinear bilinearly filters the color plane at normalized coordinates.
func (fb *FrameBuffer) SampleLinear(u, v float64) (r, g, b, a float32) {
	fx := u*float64(fb.Width) - 0.5
	fy := v*float64(fb.Height) - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := float32(fx - math.Floor(fx))
	ty := float32(fy - math.Floor(fy))

	r00, g00, b00, a00 := fb.At(x0, y0)
	r10, g10, b10, a10 := fb.At(x0+1, y0)
	r01, g01, b01, a01 := fb.At(x0, y0+1)
	r11, g11, b11, a11 := fb.At(x0+1, y0+1)

	lerp := func(p, q, t float32) float32 { return p + (q-p)*t }
	r = lerp(lerp(r00, r10, tx), lerp(r01, r11, tx), ty)
	g = lerp(lerp(g00, g10, tx), lerp(g01, g11, tx), ty)
	b = lerp(lerp(b00, b10, tx), lerp(b01, b11, tx), ty)
	a = lerp(lerp(a00, a10, tx), lerp(a01, a11, tx), ty)
	return r, g, b, a
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
