package engine

import (
	"testing"

	"github.com/trxe/instant-ngp/internal/scene"
)

func testCamera() scene.Camera {
	return scene.Camera{
		Position: scene.Vec3{Z: 0},
		Target:   scene.Vec3{Z: -1},
		Up:       scene.Vec3{Y: 1},
		FOV:      90,
	}
}

func TestGenerateCenterRayLooksAtTarget(t *testing.T) {
	var g RayGenerator
	g.Generate(testCamera(), 5, 5)
	rays := g.Rays()
	if len(rays) != 25 {
		t.Fatalf("ray count = %d", len(rays))
	}
	center := rays[2*5+2]
	if !almostEq(center.Dir.X(), 0, 1e-12) || !almostEq(center.Dir.Y(), 0, 1e-12) || !almostEq(center.Dir.Z(), -1, 1e-12) {
		t.Fatalf("center ray dir = %v", center.Dir)
	}
}

func TestGenerateRowOrderTopDown(t *testing.T) {
	var g RayGenerator
	g.Generate(testCamera(), 3, 3)
	rays := g.Rays()
	top := rays[0]
	bottom := rays[2*3]
	if !(top.Dir.Y() > 0 && bottom.Dir.Y() < 0) {
		t.Fatalf("row 0 must look up, last row down: top=%v bottom=%v", top.Dir, bottom.Dir)
	}
}

func TestGenerateUnitDirections(t *testing.T) {
	var g RayGenerator
	g.Generate(testCamera(), 8, 6)
	for i, r := range g.Rays() {
		if !almostEq(r.Dir.Len(), 1, 1e-12) {
			t.Fatalf("ray %d not normalized: %v", i, r.Dir)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	var a, b RayGenerator
	cam := testCamera()
	a.Generate(cam, 16, 9)
	b.Generate(cam, 16, 9)
	ra, rb := a.Rays(), b.Rays()
	for i := range ra {
		if ra[i] != rb[i] {
			t.Fatalf("ray %d differs: %v vs %v", i, ra[i], rb[i])
		}
	}
}

func TestGenerateReusesBuffer(t *testing.T) {
	var g RayGenerator
	g.Generate(testCamera(), 32, 32)
	first := &g.Rays()[0]
	g.Generate(testCamera(), 16, 16)
	if w, h := g.Resolution(); w != 16 || h != 16 {
		t.Fatalf("resolution = %dx%d", w, h)
	}
	if len(g.Rays()) != 256 {
		t.Fatalf("ray slice not resized: %d", len(g.Rays()))
	}
	if first != &g.Rays()[0] {
		t.Fatal("smaller generate must reuse the backing array")
	}
}

func TestRayAt(t *testing.T) {
	r := Ray{Orig: v3(1, 2, 3), Dir: v3(0, 0, -1)}
	p := r.At(2.5)
	if !almostEq(p.X(), 1, 1e-12) || !almostEq(p.Y(), 2, 1e-12) || !almostEq(p.Z(), 0.5, 1e-12) {
		t.Fatalf("At(2.5) = %v", p)
	}
}
