package engine

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func v3(x, y, z float64) mgl64.Vec3 { return mgl64.Vec3{x, y, z} }

// bigTriangle spans the z=0 plane around the origin with normal +Z.
func bigTriangle(mat int) WorldTriangle {
	return WorldTriangle{
		V0:       v3(-5, -5, 0),
		V1:       v3(5, -5, 0),
		V2:       v3(0, 5, 0),
		N:        v3(0, 0, 1),
		Material: mat,
	}
}

func TestIntersectTriangleHit(t *testing.T) {
	tri := bigTriangle(0)
	r := Ray{Orig: v3(0.2, 0.2, 5), Dir: v3(0, 0, -1)}
	tt, ok := IntersectTriangle(r, tri.V0, tri.V1, tri.V2, MinRTDist, MaxRTDist)
	if !ok {
		t.Fatal("expected hit")
	}
	if !almostEq(tt, 5, 1e-9) {
		t.Fatalf("t = %v, want 5", tt)
	}
}

func TestIntersectTriangleMisses(t *testing.T) {
	tri := bigTriangle(0)

	// Outside the barycentric bounds.
	r := Ray{Orig: v3(20, 20, 5), Dir: v3(0, 0, -1)}
	if _, ok := IntersectTriangle(r, tri.V0, tri.V1, tri.V2, MinRTDist, MaxRTDist); ok {
		t.Fatal("hit outside triangle bounds")
	}

	// Parallel to the plane.
	r = Ray{Orig: v3(0, 0, 1), Dir: v3(1, 0, 0)}
	if _, ok := IntersectTriangle(r, tri.V0, tri.V1, tri.V2, MinRTDist, MaxRTDist); ok {
		t.Fatal("hit with parallel ray")
	}

	// Behind the origin.
	r = Ray{Orig: v3(0, 0, -1), Dir: v3(0, 0, -1)}
	if _, ok := IntersectTriangle(r, tri.V0, tri.V1, tri.V2, MinRTDist, MaxRTDist); ok {
		t.Fatal("hit behind ray origin")
	}

	// Outside the t range.
	r = Ray{Orig: v3(0, 0, 5), Dir: v3(0, 0, -1)}
	if _, ok := IntersectTriangle(r, tri.V0, tri.V1, tri.V2, MinRTDist, 4.9); ok {
		t.Fatal("hit beyond tMax")
	}
}

func TestNearestPrefersFirstOnTie(t *testing.T) {
	// Two coplanar triangles at the same distance: the strict comparison
	// keeps the first enumerated winner.
	buf := &SceneBuffer{Triangles: []WorldTriangle{bigTriangle(3), bigTriangle(9)}}
	k := Kernel{Buf: buf}
	r := Ray{Orig: v3(0, 0, 5), Dir: v3(0, 0, -1)}
	hit, ok := k.Nearest(r, MaxRTDist)
	if !ok {
		t.Fatal("expected hit")
	}
	if hit.Material != 3 {
		t.Fatalf("tie should resolve to the first triangle, got material %d", hit.Material)
	}
}

func TestNearestFlipsNormalTowardRay(t *testing.T) {
	buf := &SceneBuffer{Triangles: []WorldTriangle{bigTriangle(0)}}
	k := Kernel{Buf: buf}

	// From below, the stored +Z normal faces away and must flip.
	r := Ray{Orig: v3(0, 0, -5), Dir: v3(0, 0, 1)}
	hit, ok := k.Nearest(r, MaxRTDist)
	if !ok {
		t.Fatal("expected hit")
	}
	if hit.N.Z() != -1 {
		t.Fatalf("normal should face the ray, got %v", hit.N)
	}
}

func shadedKernel(buf *SceneBuffer, q *Quality) Kernel {
	return Kernel{
		Buf:     buf,
		Quality: q,
		Shadow:  &ShadowSampler{Buf: buf, Quality: q},
	}
}

func TestShadeMissProducesClearColorAndSentinel(t *testing.T) {
	q := DefaultQuality()
	q.ClearColor.R = 0.1
	q.ClearColor.G = 0.2
	q.ClearColor.B = 0.3
	buf := &SceneBuffer{}
	k := shadedKernel(buf, &q)

	rgba, depth := k.Shade(Ray{Orig: v3(0, 0, 5), Dir: v3(0, 0, -1)})
	if rgba[3] != 0 {
		t.Fatalf("miss alpha must be 0, got %v", rgba[3])
	}
	if !almostEq(float64(rgba[0]), 0.1, 1e-6) || !almostEq(float64(rgba[1]), 0.2, 1e-6) || !almostEq(float64(rgba[2]), 0.3, 1e-6) {
		t.Fatalf("miss should write the clear color, got %v", rgba)
	}
	if float64(depth) != MaxRTDist {
		t.Fatalf("miss depth must be the sentinel, got %v", depth)
	}
}

func TestShadeLambertPointLight(t *testing.T) {
	q := DefaultQuality()
	buf := &SceneBuffer{
		Triangles: []WorldTriangle{bigTriangle(0)},
		Materials: []PackedMaterial{{Albedo: [3]float64{1, 0.5, 0.25}}},
		Lights: []PackedLight{{
			Position:  v3(0, 0, 5),
			Color:     [3]float64{1, 1, 1},
			Intensity: 25,
		}},
	}
	k := shadedKernel(buf, &q)

	rgba, depth := k.Shade(Ray{Orig: v3(0.2, 0.2, 5), Dir: v3(0, 0, -1)})
	if !almostEq(float64(depth), 5, 1e-6) {
		t.Fatalf("depth = %v, want 5", depth)
	}
	if rgba[3] != 1 {
		t.Fatalf("hit alpha must be 1, got %v", rgba[3])
	}

	// Expected unshadowed contribution at the hit point (0.2, 0.2, 0).
	toLight := v3(-0.2, -0.2, 5)
	distSq := toLight.Dot(toLight)
	nDotL := toLight.Mul(1 / math.Sqrt(distSq)).Z()
	want := nDotL * 25 / distSq
	if !almostEq(float64(rgba[0]), want, 1e-5) {
		t.Fatalf("r = %v, want %v", rgba[0], want)
	}
	if !almostEq(float64(rgba[1]), 0.5*want, 1e-5) {
		t.Fatalf("g = %v, want %v", rgba[1], 0.5*want)
	}
	if !almostEq(float64(rgba[2]), 0.25*want, 1e-5) {
		t.Fatalf("b = %v, want %v", rgba[2], 0.25*want)
	}
}

func TestShadeBackfacingLightIsDark(t *testing.T) {
	q := DefaultQuality()
	buf := &SceneBuffer{
		Triangles: []WorldTriangle{bigTriangle(0)},
		Materials: []PackedMaterial{{Albedo: [3]float64{1, 1, 1}}},
		Lights: []PackedLight{{
			Position:  v3(0, 0, -5), // behind the surface
			Color:     [3]float64{1, 1, 1},
			Intensity: 25,
		}},
	}
	k := shadedKernel(buf, &q)
	rgba, _ := k.Shade(Ray{Orig: v3(0, 0, 5), Dir: v3(0, 0, -1)})
	if rgba[0] != 0 || rgba[1] != 0 || rgba[2] != 0 {
		t.Fatalf("backfacing light must contribute nothing, got %v", rgba)
	}
}

func TestShadeDepthFilter(t *testing.T) {
	q := DefaultQuality()
	q.Filter = FilterDepth
	buf := &SceneBuffer{Triangles: []WorldTriangle{bigTriangle(0)}}
	k := shadedKernel(buf, &q)

	rgba, depth := k.Shade(Ray{Orig: v3(0, 0, 3), Dir: v3(0, 0, -1)})
	if !almostEq(float64(depth), 3, 1e-6) {
		t.Fatalf("depth = %v, want 3", depth)
	}
	want := 1.0 / 4.0
	if !almostEq(float64(rgba[0]), want, 1e-6) || rgba[0] != rgba[1] || rgba[1] != rgba[2] {
		t.Fatalf("depth filter output wrong: %v", rgba)
	}
}

func TestShadeNormalsFilter(t *testing.T) {
	q := DefaultQuality()
	q.Filter = FilterNormals
	buf := &SceneBuffer{Triangles: []WorldTriangle{bigTriangle(0)}}
	k := shadedKernel(buf, &q)

	rgba, _ := k.Shade(Ray{Orig: v3(0, 0, 3), Dir: v3(0, 0, -1)})
	// Normal (0,0,1) maps to (0.5, 0.5, 1).
	if !almostEq(float64(rgba[0]), 0.5, 1e-6) || !almostEq(float64(rgba[1]), 0.5, 1e-6) || !almostEq(float64(rgba[2]), 1, 1e-6) {
		t.Fatalf("normals filter output wrong: %v", rgba)
	}
}

func TestShadeAmbientUsesProbeOpenness(t *testing.T) {
	q := DefaultQuality()
	q.ShadowIntensityAO = 1
	buf := &SceneBuffer{
		Triangles: []WorldTriangle{bigTriangle(0)},
		Materials: []PackedMaterial{{Albedo: [3]float64{1, 1, 1}}},
	}

	open := NewProbeGrid(v3(-4, -4, -4), v3(4, 4, 4), 4) // all values 1
	kOpen := Kernel{Buf: buf, Quality: &q, Probes: open,
		Shadow: &ShadowSampler{Buf: buf, Quality: &q}}
	rgbaOpen, _ := kOpen.Shade(Ray{Orig: v3(0, 0, 3), Dir: v3(0, 0, -1)})

	closed := NewProbeGrid(v3(-4, -4, -4), v3(4, 4, 4), 4)
	for i := range closed.Values {
		closed.Values[i] = 0
	}
	kClosed := Kernel{Buf: buf, Quality: &q, Probes: closed,
		Shadow: &ShadowSampler{Buf: buf, Quality: &q}}
	rgbaClosed, _ := kClosed.Shade(Ray{Orig: v3(0, 0, 3), Dir: v3(0, 0, -1)})

	if !(rgbaOpen[0] > rgbaClosed[0]) {
		t.Fatalf("open probes should brighten ambient: open=%v closed=%v", rgbaOpen[0], rgbaClosed[0])
	}
	if !almostEq(float64(rgbaOpen[0]), ambientBase, 1e-6) {
		t.Fatalf("fully open ambient should equal the base level, got %v", rgbaOpen[0])
	}
	if rgbaClosed[0] != 0 {
		t.Fatalf("fully closed probes with full AO should kill ambient, got %v", rgbaClosed[0])
	}
}
