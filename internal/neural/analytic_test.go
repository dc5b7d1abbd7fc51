package neural

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/trxe/instant-ngp/internal/engine"
	"github.com/trxe/instant-ngp/internal/scene"
)

func testView(w, h int) engine.ViewRequest {
	return engine.ViewRequest{
		Camera: scene.Camera{
			Position: scene.Vec3{Z: 3},
			Target:   scene.Vec3{Z: -1},
			Up:       scene.Vec3{Y: 1},
			FOV:      60,
		},
		Width:      w,
		Height:     h,
		LensAdjust: 1,
	}
}

func TestQueryDensityPeaksAtBlobCenter(t *testing.T) {
	f := &Field{Blobs: []Blob{{
		Center:  mgl64.Vec3{1, 2, 3},
		Radius:  0.5,
		Density: 4,
	}}}
	center := f.QueryDensity(mgl64.Vec3{1, 2, 3})
	if center != 4 {
		t.Fatalf("density at center = %v, want 4", center)
	}
	near := f.QueryDensity(mgl64.Vec3{1.2, 2, 3})
	far := f.QueryDensity(mgl64.Vec3{3, 2, 3})
	if !(center > near && near > far) {
		t.Fatalf("density must decay with distance: %v, %v, %v", center, near, far)
	}
}

func TestQueryDensitySumsBlobs(t *testing.T) {
	f := &Field{Blobs: []Blob{
		{Center: mgl64.Vec3{0, 0, 0}, Radius: 1, Density: 2},
		{Center: mgl64.Vec3{0, 0, 0}, Radius: 1, Density: 3},
	}}
	if got := f.QueryDensity(mgl64.Vec3{}); got != 5 {
		t.Fatalf("overlapping blobs should sum, got %v", got)
	}
}

func TestRenderUsesOwnResolution(t *testing.T) {
	f := DefaultField()
	f.Scale = 0.25
	res, err := f.Render(testView(64, 32))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Width != 16 || res.Height != 8 {
		t.Fatalf("resolution = %dx%d, want 16x8", res.Width, res.Height)
	}
	if len(res.Color) != 16*8*4 || len(res.Depth) != 16*8 {
		t.Fatalf("plane sizes = %d, %d", len(res.Color), len(res.Depth))
	}
}

func TestRenderCenterSeesTheVolume(t *testing.T) {
	f := DefaultField()
	f.Scale = 1
	res, err := f.Render(testView(32, 32))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	idx := 16*res.Width + 16
	if a := res.Color[idx*4+3]; a <= 0.1 {
		t.Fatalf("center alpha = %v, expected a dense volume in view", a)
	}
	if d := res.Depth[idx]; d <= 0 || d >= float32(engine.MaxRTDist) {
		t.Fatalf("center depth = %v, expected a finite expected depth", d)
	}
}

func TestRenderEmptyFieldIsBackground(t *testing.T) {
	f := &Field{Scale: 1, MarchSteps: 16, Background: [3]float64{0.2, 0.4, 0.6}}
	res, err := f.Render(testView(4, 4))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i := 0; i < res.Width*res.Height; i++ {
		if res.Color[i*4] != 0.2 || res.Color[i*4+3] != 0 {
			t.Fatalf("pixel %d should be pure background with zero alpha", i)
		}
		if res.Depth[i] != float32(engine.MaxRTDist) {
			t.Fatalf("pixel %d depth = %v, want the miss sentinel", i, res.Depth[i])
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	f := DefaultField()
	a, err := f.Render(testView(16, 16))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := f.Render(testView(16, 16))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i := range a.Color {
		if a.Color[i] != b.Color[i] {
			t.Fatalf("color diverges at %d: %v vs %v", i, a.Color[i], b.Color[i])
		}
	}
}
