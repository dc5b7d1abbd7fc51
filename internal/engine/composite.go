package engine

// CompositeFilter selects how the synthetic buffer is sampled during
// compositing. The neural buffer always uses nearest sampling.
type CompositeFilter int

const (
	CompositeNearest CompositeFilter = iota
	CompositeLinear
)

// Compositor combines the synthetic and neural buffers, each at its own
// resolution, into the display buffer through the inverse foveation warp.
type Compositor struct {
	Warp   FoveationWarp
	Filter CompositeFilter
}

// Composite writes one color and depth per display pixel. For each pixel the
// uniform display coordinate is unwarped to a source coordinate, clamped to
// [0,1], and both buffers are sampled there; the synthetic sample is alpha
// composited over the neural one, and synthetic depth is passed through for
// downstream depth-test consumers.
func (c *Compositor) Composite(syn, neural, out *FrameBuffer) {
	invW := 1 / float64(out.Width)
	invH := 1 / float64(out.Height)

	for y := 0; y < out.Height; y++ {
		v := (float64(y) + 0.5) * invH
		sv := clamp01(c.Warp.Y.Unwarp(v))
		for x := 0; x < out.Width; x++ {
			u := (float64(x) + 0.5) * invW
			su := clamp01(c.Warp.X.Unwarp(u))

			var sr, sg, sb, sa float32
			if c.Filter == CompositeLinear {
				sr, sg, sb, sa = syn.SampleLinear(su, sv)
			} else {
				sr, sg, sb, sa = syn.SampleNearest(su, sv)
			}
			nr, ng, nb, _ := neural.SampleNearest(su, sv)

			i := (y*out.Width + x) * 4
			out.Color[i] = sr*sa + nr*(1-sa)
			out.Color[i+1] = sg*sa + ng*(1-sa)
			out.Color[i+2] = sb*sa + nb*(1-sa)
			out.Color[i+3] = 1

			out.Depth[y*out.Width+x] = syn.SampleDepthNearest(su, sv)
		}
	}
}
