package engine

import "math"

// AxisWarp is the per-axis piecewise-quadratic foveation curve. It maps a
// uniform display coordinate in [0,1] to a non-uniform source coordinate in
// [0,1]: two quadratic end segments around a linear middle, continuous in
// value and first derivative at both switch points, strictly monotonic.
//
// The middle slope m is solved so the curve spans exactly [0,1]; the edge
// slope is Edge*m with Edge >= 1, so periphery pixels compress more source
// per display pixel while screen-center pixels map near 1:1. Start=0, End=1
// degenerates to the identity.
type AxisWarp struct {
	Start float64 // left switch point
	End   float64 // right switch point
	mid   float64 // linear segment slope
	edge  float64 // derivative at the outer ends
}

// NewAxisWarp builds a warp with switch points start <= end in [0,1] and the
// given edge/center slope ratio (>= 1).
func NewAxisWarp(start, end, edgeRatio float64) AxisWarp {
	start = clamp01(start)
	end = clamp01(end)
	if end < start {
		start, end = end, start
	}
	if edgeRatio < 1 {
		edgeRatio = 1
	}

	// Quadratic segments have linearly varying derivative, so each spans
	// (average slope × width) of source; solve the middle slope from the
	// total span being exactly 1.
	halfAvg := (1 + edgeRatio) / 2
	span := halfAvg*start + (end - start) + halfAvg*(1-end)
	m := 1 / span
	return AxisWarp{Start: start, End: end, mid: m, edge: edgeRatio * m}
}

// sourceAtStart returns the source coordinate at the left switch point.
func (w AxisWarp) sourceAtStart() float64 {
	return (w.edge + w.mid) / 2 * w.Start
}

// sourceAtEnd returns the source coordinate at the right switch point.
func (w AxisWarp) sourceAtEnd() float64 {
	return 1 - (w.edge+w.mid)/2*(1-w.End)
}

// Unwarp maps a display coordinate to its source coordinate.
func (w AxisWarp) Unwarp(x float64) float64 {
	x = clamp01(x)
	switch {
	case x < w.Start:
		// derivative runs from edge at 0 to mid at Start
		return w.edge*x + (w.mid-w.edge)*x*x/(2*w.Start)
	case x > w.End:
		y := 1 - x
		return 1 - (w.edge*y + (w.mid-w.edge)*y*y/(2*(1-w.End)))
	default:
		return w.sourceAtStart() + w.mid*(x-w.Start)
	}
}

// Warp is the exact inverse of Unwarp: source coordinate to display
// coordinate. Each quadratic segment is inverted in closed form.
func (w AxisWarp) Warp(u float64) float64 {
	u = clamp01(u)
	switch {
	case u < w.sourceAtStart():
		return solveQuadSegment(u, w.edge, w.mid, w.Start)
	case u > w.sourceAtEnd():
		return 1 - solveQuadSegment(1-u, w.edge, w.mid, 1-w.End)
	default:
		return w.Start + (u-w.sourceAtStart())/w.mid
	}
}

// solveQuadSegment inverts e*x + (m-e)*x²/(2*width) = u for x in [0, width].
func solveQuadSegment(u, e, m, width float64) float64 {
	a := (m - e) / (2 * width)
	if math.Abs(a) < 1e-12 {
		return u / e
	}
	disc := e*e + 4*a*u
	if disc < 0 {
		disc = 0
	}
	return (-e + math.Sqrt(disc)) / (2 * a)
}

// FoveationWarp combines the two per-axis curves.
type FoveationWarp struct {
	X AxisWarp
	Y AxisWarp
}

// NewFoveationWarp builds both axes from the quality parameters.
func NewFoveationWarp(q *Quality) FoveationWarp {
	return FoveationWarp{
		X: NewAxisWarp(q.FoveaStart, q.FoveaEnd, q.FoveaEdge),
		Y: NewAxisWarp(q.FoveaStart, q.FoveaEnd, q.FoveaEdge),
	}
}

// Unwarp maps display UV to source UV.
func (f FoveationWarp) Unwarp(u, v float64) (float64, float64) {
	return f.X.Unwarp(u), f.Y.Unwarp(v)
}

// Warp maps source UV to display UV.
func (f FoveationWarp) Warp(u, v float64) (float64, float64) {
	return f.X.Warp(u), f.Y.Warp(v)
}
