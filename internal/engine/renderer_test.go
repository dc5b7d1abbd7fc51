package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// stubNeural returns a fixed-resolution solid-color buffer with miss depth
// everywhere and zero density, so cross-shadow passes are no-ops.
type stubNeural struct {
	w, h    int
	renders int
}

func (s *stubNeural) Render(req ViewRequest) (ViewResult, error) {
	s.renders++
	n := s.w * s.h
	color := make([]float32, n*4)
	depth := make([]float32, n)
	for i := 0; i < n; i++ {
		color[i*4+2] = 1
		color[i*4+3] = 1
		depth[i] = MaxRTDist
	}
	return ViewResult{Width: s.w, Height: s.h, Color: color, Depth: depth}, nil
}

func (s *stubNeural) QueryDensity(p mgl64.Vec3) float64 { return 0 }

func newTestRenderer(t *testing.T) (*Renderer, *stubNeural) {
	t.Helper()
	sc := testScene()
	sc.MarkAllDirty()
	stub := &stubNeural{w: 256, h: 256}
	r := NewRenderer(sc, stub, nil)
	r.DisplayWidth = 512
	r.DisplayHeight = 512
	return r, stub
}

func TestRenderFrameDisplayResolutionAndAccumulation(t *testing.T) {
	r, stub := newTestRenderer(t)

	fb, err := r.RenderFrame()
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if fb.Width != 512 || fb.Height != 512 {
		t.Fatalf("display = %dx%d", fb.Width, fb.Height)
	}
	if r.Samples() != 1 {
		t.Fatalf("samples after first frame = %d", r.Samples())
	}
	if stub.renders != 1 {
		t.Fatalf("neural renders = %d", stub.renders)
	}

	if _, err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if r.Samples() != 2 {
		t.Fatalf("samples should accumulate while nothing changes, got %d", r.Samples())
	}
}

func TestRenderFrameNeuralShowsThroughMisses(t *testing.T) {
	r, _ := newTestRenderer(t)
	fb, err := r.RenderFrame()
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	// The corner ray misses the single triangle, so the display pixel is the
	// neural background (solid blue).
	cr, cg, cb, _ := fb.At(0, 0)
	if cr != 0 || cg != 0 || cb != 1 {
		t.Fatalf("corner pixel = (%v, %v, %v), want neural blue", cr, cg, cb)
	}
}

func TestRenderFrameResetsOnDirtyObject(t *testing.T) {
	r, _ := newTestRenderer(t)
	for i := 0; i < 3; i++ {
		if _, err := r.RenderFrame(); err != nil {
			t.Fatalf("RenderFrame: %v", err)
		}
	}
	if r.Samples() != 3 {
		t.Fatalf("samples = %d", r.Samples())
	}

	r.Scene().Object(0).MarkDirty()
	if _, err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if r.Samples() != 1 {
		t.Fatalf("dirty object should reset accumulation, samples = %d", r.Samples())
	}
}

func TestRenderFrameResetsOnCameraAndQuality(t *testing.T) {
	r, _ := newTestRenderer(t)
	if _, err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	r.Scene().Camera.MarkDirty()
	if _, err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if r.Samples() != 1 {
		t.Fatalf("camera move should reset, samples = %d", r.Samples())
	}

	if _, err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	q := r.Quality()
	q.ShadowSamples = 4
	r.SetQuality(q)
	if _, err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if r.Samples() != 1 {
		t.Fatalf("quality change should reset, samples = %d", r.Samples())
	}
}

func TestRenderFrameRecordingStopsAtBound(t *testing.T) {
	r, _ := newTestRenderer(t)
	dir := t.TempDir()
	r.Recorder.Dir = dir
	r.Recording = true

	q := r.Quality()
	q.ImgCountMax = 2
	r.SetQuality(q)

	for i := 0; i < 3; i++ {
		if _, err := r.RenderFrame(); err != nil {
			t.Fatalf("RenderFrame: %v", err)
		}
	}
	if r.Recording {
		t.Fatal("recording should stop once the frame bound is reached")
	}
	for i := 0; i < 2; i++ {
		name := filepath.Join(dir, fmt.Sprintf("output-%03d.png", i))
		if _, err := os.Stat(name); err != nil {
			t.Fatalf("missing recorded frame %s: %v", name, err)
		}
	}
}

func TestRenderFrameResetsOnNeuralResolutionChange(t *testing.T) {
	r, stub := newTestRenderer(t)
	for i := 0; i < 4; i++ {
		if _, err := r.RenderFrame(); err != nil {
			t.Fatalf("RenderFrame: %v", err)
		}
	}
	if r.Samples() != 4 {
		t.Fatalf("samples = %d", r.Samples())
	}

	stub.w, stub.h = 128, 128
	fb, err := r.RenderFrame()
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if r.Samples() != 1 {
		t.Fatalf("resolution growth must reset accumulation, samples = %d", r.Samples())
	}
	if r.syn.Width != 128 || r.syn.Height != 128 {
		t.Fatalf("synthetic = %dx%d", r.syn.Width, r.syn.Height)
	}

	// The frame after the growth must match a first frame rendered at the
	// new resolution exactly; dividing fresh accumulation by a stale sample
	// count would dim every synthetic pixel.
	fresh, freshStub := newTestRenderer(t)
	freshStub.w, freshStub.h = 128, 128
	want, err := fresh.RenderFrame()
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	for i := range want.Color {
		if fb.Color[i] != want.Color[i] {
			t.Fatalf("display diverges at %d: %v vs %v", i, fb.Color[i], want.Color[i])
		}
	}

	// Shrinking resets as well instead of reinterpreting stale accumulation
	// at the new stride.
	stub.w, stub.h = 64, 64
	if _, err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if r.Samples() != 1 {
		t.Fatalf("resolution shrink must reset accumulation, samples = %d", r.Samples())
	}
}

func TestRenderFrameSyntheticFollowsScale(t *testing.T) {
	r, _ := newTestRenderer(t)
	q := r.Quality()
	q.SynScale = 0.5
	r.SetQuality(q)
	if _, err := r.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if r.syn.Width != 128 || r.syn.Height != 128 {
		t.Fatalf("synthetic = %dx%d, want half the neural resolution", r.syn.Width, r.syn.Height)
	}
}
