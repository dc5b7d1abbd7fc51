package engine

import (
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/trxe/instant-ngp/internal/scene"
)

// SyntheticRequest carries everything one synthetic render pass needs. It is
// rebuilt per frame; passes must not retain it.
type SyntheticRequest struct {
	Camera scene.Camera
	Rays   []Ray
	Width  int
	Height int

	Quality *Quality
	Buf     *SceneBuffer
	Density DensityField
	Probes  *ProbeGrid

	// Reset clears the progressive buffer before this pass; Samples is the
	// accumulated sample count including this pass.
	Reset   bool
	Samples int

	Target *FrameBuffer
}

// SyntheticPass renders the triangle scene into the synthetic buffer. It is
// also the staging upload target, so a pass owns its device-side mirror of
// the scene arrays. The CPU pass runs in-process; the GPU pass lives in the
// gpu package and is injected by the caller, keeping this package free of a
// GL dependency.
type SyntheticPass interface {
	Device
	Render(req *SyntheticRequest) error
}

// Renderer orchestrates one frame: staging sync, dirty-driven accumulation
// reset, ray generation, the synthetic pass, the neural render, the
// cross-shadow pass over the neural buffer, foveated compositing, and
// optional recording. Each stage completes before the next starts; there is
// no cross-frame overlap and no mid-frame cancellation.
type Renderer struct {
	sc      *scene.Scene
	neural  NeuralRenderer
	pass    SyntheticPass
	staging *Staging
	accum   AccumulationController
	raygen  RayGenerator
	probes  *ProbeGrid

	quality     Quality
	lastQuality Quality
	haveLastQ   bool

	lastSynW int
	lastSynH int

	syn      *FrameBuffer
	neuralFB *FrameBuffer
	display  *FrameBuffer

	Recorder  *Recorder
	Recording bool

	DisplayWidth  int
	DisplayHeight int
}

// NewRenderer wires the pipeline for a loaded scene. pass may be nil, in
// which case the in-process CPU pass is used. The probe grid is computed
// once here; call RecomputeProbes after the density field changes.
func NewRenderer(sc *scene.Scene, neural NeuralRenderer, pass SyntheticPass) *Renderer {
	q := QualityFromScene(sc).ApplyEnvOverrides()
	if pass == nil {
		pass = NewCPUPass()
	}
	r := &Renderer{
		sc:            sc,
		neural:        neural,
		pass:          pass,
		staging:       NewStaging(sc),
		quality:       q,
		syn:           NewFrameBuffer(1, 1),
		neuralFB:      NewFrameBuffer(1, 1),
		display:       NewFrameBuffer(1, 1),
		Recorder:      &Recorder{Dir: ".", CountMax: q.ImgCountMax},
		DisplayWidth:  1280,
		DisplayHeight: 720,
	}
	r.probes = NewProbeGrid(mgl64.Vec3{-4, -4, -4}, mgl64.Vec3{4, 4, 4}, 16)
	r.RecomputeProbes()
	return r
}

// Quality returns the active tuning.
func (r *Renderer) Quality() Quality { return r.quality }

// SetQuality replaces the active tuning; the next frame resets accumulation
// if anything actually changed.
func (r *Renderer) SetQuality(q Quality) { r.quality = q.Clamped() }

// Scene returns the scene this renderer drives.
func (r *Renderer) Scene() *scene.Scene { return r.sc }

// Samples returns the accumulated sample count.
func (r *Renderer) Samples() int { return r.accum.Samples() }

// RecomputeProbes refreshes the ambient probe grid from the density field.
func (r *Renderer) RecomputeProbes() {
	if r.neural != nil {
		r.probes.Recompute(r.neural)
	}
}

// RenderFrame runs the full per-frame pipeline and returns the display
// buffer. The returned buffer is owned by the renderer and valid until the
// next call. A non-nil error is unrecoverable (device failure).
func (r *Renderer) RenderFrame() (*FrameBuffer, error) {
	// 1. Stage scene changes. Upload failure means device state is gone.
	changed, err := r.staging.Sync(r.pass)
	if err != nil {
		return nil, fmt.Errorf("scene sync: %w", err)
	}
	if changed {
		r.accum.Invalidate()
	}
	if r.sc.Camera.Dirty() {
		r.accum.Invalidate()
		r.sc.Camera.ClearDirty()
	}
	if !r.haveLastQ || r.quality != r.lastQuality {
		if r.haveLastQ {
			r.accum.Invalidate()
		}
		r.lastQuality = r.quality
		r.haveLastQ = true
	}
	// 2. Neural render, awaited before anything reads its buffer.
	view := ViewRequest{
		Camera:     r.sc.Camera,
		Width:      r.DisplayWidth,
		Height:     r.DisplayHeight,
		LensAdjust: r.quality.LensAdjust,
	}
	res, err := r.neural.Render(view)
	if err != nil {
		return nil, fmt.Errorf("neural render: %w", err)
	}
	r.neuralFB.Resize(res.Width, res.Height)
	copy(r.neuralFB.Color, res.Color)
	copy(r.neuralFB.Depth, res.Depth)

	// 3. Synthetic resolution follows the neural one by the relative scale.
	// A resolution change invalidates accumulation here so the buffer reset
	// and the sample counter stay in lockstep; the reset is consumed only
	// once the resolution for this frame is known.
	synW := maxInt(1, int(float64(res.Width)*r.quality.SynScale+0.5))
	synH := maxInt(1, int(float64(res.Height)*r.quality.SynScale+0.5))
	if synW != r.lastSynW || synH != r.lastSynH {
		r.accum.Invalidate()
		r.lastSynW, r.lastSynH = synW, synH
	}
	reset := r.accum.BeginFrame()
	r.syn.Resize(synW, synH)
	r.raygen.Generate(r.sc.Camera, synW, synH)

	// 4. Synthetic pass with progressive accumulation.
	r.accum.AddSample()
	req := SyntheticRequest{
		Camera:  r.sc.Camera,
		Rays:    r.raygen.Rays(),
		Width:   synW,
		Height:  synH,
		Quality: &r.quality,
		Buf:     r.staging.Buffer(),
		Density: r.neural,
		Probes:  r.probes,
		Reset:   reset,
		Samples: r.accum.Samples(),
		Target:  r.syn,
	}
	if err := r.pass.Render(&req); err != nil {
		return nil, fmt.Errorf("synthetic pass: %w", err)
	}

	// 5. Triangle shadows onto the neural buffer.
	shadow := ShadowSampler{Buf: r.staging.Buffer(), Density: r.neural, Quality: &r.quality}
	shadow.NeuralShadowPass(r.neuralFB, r.raygen.Rays(), synW, synH)

	// 6. Foveated compositing into the display buffer.
	r.display.Resize(r.DisplayWidth, r.DisplayHeight)
	comp := Compositor{Warp: NewFoveationWarp(&r.quality), Filter: CompositeLinear}
	comp.Composite(r.syn, r.neuralFB, r.display)

	// 7. Optional recording; write failures are logged, not fatal.
	if r.Recording {
		r.Recorder.CountMax = r.quality.ImgCountMax
		claimed, err := r.Recorder.WriteFrame(ToImage(r.display))
		if err != nil {
			log.Printf("recording: %v", err)
		}
		if !claimed {
			r.Recording = false
			log.Printf("recording: frame bound reached, stopping")
		}
	}

	return r.display, nil
}

// CPUPass renders the synthetic buffer in-process with a tile worker pool.
// Tiles keep workers balanced and cache-friendly for larger resolutions.
type CPUPass struct {
	buf   SceneBuffer
	accum []float32
}

// NewCPUPass returns the in-process synthetic pass.
func NewCPUPass() *CPUPass { return &CPUPass{} }

func (p *CPUPass) UploadObjects(transforms []ObjectTransform, tris []WorldTriangle) error {
	p.buf.Transforms = transforms
	p.buf.Triangles = tris
	return nil
}

func (p *CPUPass) UploadMaterials(mats []PackedMaterial) error {
	p.buf.Materials = mats
	return nil
}

func (p *CPUPass) UploadLights(lights []PackedLight) error {
	p.buf.Lights = lights
	return nil
}

const tileSize = 32

func (p *CPUPass) Render(req *SyntheticRequest) error {
	n := req.Width * req.Height * 4
	if cap(p.accum) < n {
		p.accum = make([]float32, n)
		req.Reset = true
	} else {
		p.accum = p.accum[:n]
	}
	if req.Reset {
		for i := range p.accum {
			p.accum[i] = 0
		}
	}

	kernel := Kernel{
		Buf:     &p.buf,
		Probes:  req.Probes,
		Quality: req.Quality,
		Shadow: &ShadowSampler{
			Buf:     &p.buf,
			Density: req.Density,
			Quality: req.Quality,
		},
	}

	type tile struct{ x0, y0, x1, y1 int }
	tilesX := (req.Width + tileSize - 1) / tileSize
	tilesY := (req.Height + tileSize - 1) / tileSize
	tiles := make(chan tile, tilesX*tilesY)
	for ty := 0; ty < req.Height; ty += tileSize {
		for tx := 0; tx < req.Width; tx += tileSize {
			tiles <- tile{tx, ty, minInt(tx+tileSize, req.Width), minInt(ty+tileSize, req.Height)}
		}
	}
	close(tiles)

	invSamples := float32(1) / float32(req.Samples)
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tiles {
				for y := t.y0; y < t.y1; y++ {
					row := y * req.Width
					for x := t.x0; x < t.x1; x++ {
						idx := row + x
						rgba, depth := kernel.Shade(req.Rays[idx])

						off := idx * 4
						p.accum[off] += rgba[0]
						p.accum[off+1] += rgba[1]
						p.accum[off+2] += rgba[2]
						p.accum[off+3] += rgba[3]

						req.Target.Color[off] = p.accum[off] * invSamples
						req.Target.Color[off+1] = p.accum[off+1] * invSamples
						req.Target.Color[off+2] = p.accum[off+2] * invSamples
						req.Target.Color[off+3] = p.accum[off+3] * invSamples
						req.Target.Depth[idx] = depth
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
