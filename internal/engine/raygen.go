package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/trxe/instant-ngp/internal/scene"
)

// Ray is a primary or secondary ray in world space. Dir is unit length.
type Ray struct {
	Orig mgl64.Vec3
	Dir  mgl64.Vec3
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Orig.Add(r.Dir.Mul(t))
}

// RayGenerator produces one camera ray per pixel. Generation is
// deterministic and depends only on the camera state and target resolution;
// the output buffer grows to fit and is never shrunk between frames.
type RayGenerator struct {
	rays   []Ray
	width  int
	height int
}

// Rays returns the ray buffer from the last Generate call, one ray per pixel
// in row-major order.
func (g *RayGenerator) Rays() []Ray { return g.rays }

// Resolution returns the resolution of the last Generate call.
func (g *RayGenerator) Resolution() (w, h int) { return g.width, g.height }

// Generate fills the ray buffer for the given camera and resolution. Rays
// pass through pixel centers; the viewport construction mirrors the
// look-at/FOV camera model used by the GPU kernel.
func (g *RayGenerator) Generate(cam scene.Camera, width, height int) {
	n := width * height
	if cap(g.rays) < n {
		g.rays = make([]Ray, n)
	} else {
		g.rays = g.rays[:n]
	}
	g.width = width
	g.height = height

	aspect := float64(width) / float64(height)
	if cam.AspectRatio != 0 {
		aspect = cam.AspectRatio
	}

	theta := cam.FOV * math.Pi / 180
	h := math.Tan(theta / 2)
	viewportHeight := 2.0 * h
	viewportWidth := aspect * viewportHeight

	origin := mgl64.Vec3{cam.Position.X, cam.Position.Y, cam.Position.Z}
	target := mgl64.Vec3{cam.Target.X, cam.Target.Y, cam.Target.Z}
	up := mgl64.Vec3{cam.Up.X, cam.Up.Y, cam.Up.Z}

	w := origin.Sub(target).Normalize()
	u := up.Cross(w).Normalize()
	v := w.Cross(u)

	horizontal := u.Mul(viewportWidth)
	vertical := v.Mul(viewportHeight)
	lowerLeft := origin.Sub(horizontal.Mul(0.5)).Sub(vertical.Mul(0.5)).Sub(w)

	invW := 1.0 / float64(width)
	invH := 1.0 / float64(height)
	for y := 0; y < height; y++ {
		// Image rows run top to bottom, viewport t runs bottom to top.
		t := (float64(height-1-y) + 0.5) * invH
		row := y * width
		for x := 0; x < width; x++ {
			s := (float64(x) + 0.5) * invW
			dir := lowerLeft.Add(horizontal.Mul(s)).Add(vertical.Mul(t)).Sub(origin)
			g.rays[row+x] = Ray{Orig: origin, Dir: dir.Normalize()}
		}
	}
}
