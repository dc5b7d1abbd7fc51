// Package gpu renders the triangle scene with an OpenGL 4.3 compute shader.
// A dedicated worker goroutine owns the GL context on a locked OS thread and
// serves render requests over a channel; scene data arrives as flat float32
// arrays in shader storage buffers.
package gpu

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/trxe/instant-ngp/internal/engine"
)

// Flat array strides. Must stay in sync with the constants in the compute
// shader below.
//
// Triangle: [v0.x v0.y v0.z pad, v1.x v1.y v1.z pad,
//            v2.x v2.y v2.z pad, n.x n.y n.z materialIndex] (16 floats)
// Material: [albedo.r albedo.g albedo.b roughness]          (4 floats)
// Light:    [pos.x pos.y pos.z intensity,
//            color.r color.g color.b pad]                   (8 floats)
const (
	triStride   = 16
	matStride   = 4
	lightStride = 8
)

// Openness grid baked from the density field. The shader samples it both for
// ambient occlusion and, via -log, for shadow marching. CPU shadow rays query
// the field exactly; the GPU works from this discretized copy.
const (
	gridRes = 32
	gridExt = 4.0
)

// Pass is the GPU implementation of engine.SyntheticPass. Upload methods
// repack the staged arrays into the flat layouts above; the actual buffer
// uploads happen on the GL worker at the start of the next Render.
type Pass struct {
	mu     sync.Mutex
	tris   []float32
	mats   []float32
	lights []float32
	grid   []float32

	trisDirty   bool
	matsDirty   bool
	lightsDirty bool
	gridDirty   bool
}

// NewPass bakes the density field into the openness grid and returns a pass
// ready for staging uploads. The GL context is created lazily on first
// Render.
func NewPass(density engine.DensityField) *Pass {
	p := &Pass{}
	p.BakeDensity(density)
	return p
}

// BakeDensity rebuilds the openness grid. Call it again if the density field
// changes; scene edits alone do not require a rebake.
func (p *Pass) BakeDensity(density engine.DensityField) {
	grid := make([]float32, gridRes*gridRes*gridRes)
	if density != nil {
		cell := 2 * gridExt / float64(gridRes-1)
		i := 0
		for z := 0; z < gridRes; z++ {
			for y := 0; y < gridRes; y++ {
				for x := 0; x < gridRes; x++ {
					pos := mgl64.Vec3{
						-gridExt + float64(x)*cell,
						-gridExt + float64(y)*cell,
						-gridExt + float64(z)*cell,
					}
					grid[i] = float32(math.Exp(-density.QueryDensity(pos)))
					i++
				}
			}
		}
	} else {
		for i := range grid {
			grid[i] = 1
		}
	}
	p.mu.Lock()
	p.grid = grid
	p.gridDirty = true
	p.mu.Unlock()
}

func (p *Pass) UploadObjects(transforms []engine.ObjectTransform, tris []engine.WorldTriangle) error {
	data := make([]float32, len(tris)*triStride)
	for i := range tris {
		t := &tris[i]
		base := i * triStride
		putVec3(data[base:], t.V0)
		putVec3(data[base+4:], t.V1)
		putVec3(data[base+8:], t.V2)
		putVec3(data[base+12:], t.N)
		data[base+15] = float32(t.Material)
	}
	p.mu.Lock()
	p.tris = data
	p.trisDirty = true
	p.mu.Unlock()
	return nil
}

func (p *Pass) UploadMaterials(mats []engine.PackedMaterial) error {
	data := make([]float32, len(mats)*matStride)
	for i := range mats {
		m := &mats[i]
		base := i * matStride
		data[base+0] = float32(m.Albedo[0])
		data[base+1] = float32(m.Albedo[1])
		data[base+2] = float32(m.Albedo[2])
		data[base+3] = float32(m.Roughness)
	}
	p.mu.Lock()
	p.mats = data
	p.matsDirty = true
	p.mu.Unlock()
	return nil
}

func (p *Pass) UploadLights(lights []engine.PackedLight) error {
	data := make([]float32, len(lights)*lightStride)
	for i := range lights {
		l := &lights[i]
		base := i * lightStride
		putVec3(data[base:], l.Position)
		data[base+3] = float32(l.Intensity)
		data[base+4] = float32(l.Color[0])
		data[base+5] = float32(l.Color[1])
		data[base+6] = float32(l.Color[2])
	}
	p.mu.Lock()
	p.lights = data
	p.lightsDirty = true
	p.mu.Unlock()
	return nil
}

func putVec3(dst []float32, v mgl64.Vec3) {
	dst[0] = float32(v.X())
	dst[1] = float32(v.Y())
	dst[2] = float32(v.Z())
}

// Render dispatches the compute shader on the GL worker and blocks until the
// accumulated frame has been read back into req.Target.
func (p *Pass) Render(req *engine.SyntheticRequest) error {
	ensureWorker()
	done := make(chan error, 1)
	renderCh <- renderRequest{pass: p, req: req, done: done}
	return <-done
}

var _ engine.SyntheticPass = (*Pass)(nil)

// renderRequest is sent from callers to the dedicated GL worker goroutine.
type renderRequest struct {
	pass *Pass
	req  *engine.SyntheticRequest
	done chan error
}

var (
	state      glState
	renderCh   chan renderRequest
	workerOnce sync.Once
)

// ensureWorker starts the dedicated GL worker goroutine exactly once.
func ensureWorker() {
	workerOnce.Do(func() {
		renderCh = make(chan renderRequest)
		go renderWorker()
	})
}

// renderWorker owns the GL context and processes all GPU render requests.
// It always runs on a single locked OS thread, which is required by OpenGL.
func renderWorker() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := state.initGL(); err != nil {
		fmt.Fprintf(os.Stderr, "GPU initialization failed: %v\n", err)
		for req := range renderCh {
			req.done <- err
		}
		return
	}

	for req := range renderCh {
		err := state.renderOnce(req.pass, req.req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "GPU render error: %v\n", err)
		}
		req.done <- err
	}
}

// glState owns a hidden GLFW window and the GL resources used for compute
// rendering.
type glState struct {
	initOnce sync.Once
	initErr  error
	window   *glfw.Window
	program  uint32

	triSSBO   uint32
	matSSBO   uint32
	lightSSBO uint32
	gridSSBO  uint32
	accumSSBO uint32
	depthSSBO uint32
	camUBO    uint32

	width  int
	height int
}

// initGL must be called from the GL worker goroutine (locked OS thread).
func (s *glState) initGL() error {
	s.initOnce.Do(func() {
		if err := glfw.Init(); err != nil {
			s.initErr = fmt.Errorf("glfw init: %w", err)
			return
		}

		glfw.WindowHint(glfw.Visible, glfw.False)
		glfw.WindowHint(glfw.ContextVersionMajor, 4)
		glfw.WindowHint(glfw.ContextVersionMinor, 3)
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

		w, err := glfw.CreateWindow(1, 1, "hybrid-gpu-hidden", nil, nil)
		if err != nil {
			s.initErr = fmt.Errorf("glfw create window: %w", err)
			return
		}
		s.window = w
		w.MakeContextCurrent()

		if err := gl.Init(); err != nil {
			s.initErr = fmt.Errorf("gl init: %w", err)
			return
		}

		s.program, s.initErr = compileComputeProgram(computeSrc)
		if s.initErr != nil {
			return
		}

		gl.GenBuffers(1, &s.triSSBO)
		gl.GenBuffers(1, &s.matSSBO)
		gl.GenBuffers(1, &s.lightSSBO)
		gl.GenBuffers(1, &s.gridSSBO)
		gl.GenBuffers(1, &s.accumSSBO)
		gl.GenBuffers(1, &s.depthSSBO)
		gl.GenBuffers(1, &s.camUBO)
	})
	return s.initErr
}

func compileComputeProgram(src string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)
	csources, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compute shader compile: %s", strings.TrimRight(log, "\x00"))
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, shader)
	gl.LinkProgram(prog)
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compute program link: %s", strings.TrimRight(log, "\x00"))
	}
	gl.DeleteShader(shader)
	return prog, nil
}

func uploadSSBO(ssbo uint32, data []float32) {
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	if len(data) == 0 {
		// A zero-size buffer binding is invalid; keep one float of padding.
		var pad float32
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, 4, gl.Ptr(&pad), gl.DYNAMIC_DRAW)
		return
	}
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, len(data)*4, gl.Ptr(data), gl.DYNAMIC_DRAW)
}

func (s *glState) renderOnce(p *Pass, req *engine.SyntheticRequest) error {
	w, h := req.Width, req.Height
	if w <= 0 || h <= 0 {
		return fmt.Errorf("gpu render: invalid resolution %dx%d", w, h)
	}

	p.mu.Lock()
	var tris, mats, lights, grid []float32
	if p.trisDirty {
		tris = p.tris
		p.trisDirty = false
	}
	if p.matsDirty {
		mats = p.mats
		p.matsDirty = false
	}
	if p.lightsDirty {
		lights = p.lights
		p.lightsDirty = false
	}
	if p.gridDirty {
		grid = p.grid
		p.gridDirty = false
	}
	triCount := len(p.tris) / triStride
	lightCount := len(p.lights) / lightStride
	p.mu.Unlock()

	if tris != nil {
		uploadSSBO(s.triSSBO, tris)
	}
	if mats != nil {
		uploadSSBO(s.matSSBO, mats)
	}
	if lights != nil {
		uploadSSBO(s.lightSSBO, lights)
	}
	if grid != nil {
		uploadSSBO(s.gridSSBO, grid)
	}

	reset := req.Reset
	if w != s.width || h != s.height {
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, s.accumSSBO)
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, w*h*4*4, nil, gl.DYNAMIC_DRAW)
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, s.depthSSBO)
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, w*h*4, nil, gl.DYNAMIC_DRAW)
		s.width = w
		s.height = h
		reset = true
	}

	q := req.Quality
	s.uploadCamera(req, q)

	gl.UseProgram(s.program)
	gl.BindBufferBase(gl.UNIFORM_BUFFER, 1, s.camUBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 2, s.triSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 3, s.matSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 4, s.lightSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 5, s.gridSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 6, s.accumSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 7, s.depthSSBO)

	setInt := func(name string, v int32) {
		gl.Uniform1i(gl.GetUniformLocation(s.program, gl.Str(name+"\x00")), v)
	}
	setFloat := func(name string, v float64) {
		gl.Uniform1f(gl.GetUniformLocation(s.program, gl.Str(name+"\x00")), float32(v))
	}

	setInt("uWidth", int32(w))
	setInt("uHeight", int32(h))
	setInt("uTriCount", int32(triCount))
	setInt("uLightCount", int32(lightCount))
	setInt("uReset", boolInt(reset))
	setInt("uFilter", int32(q.Filter))
	setInt("uShadowSamples", int32(q.ShadowSamples))
	setInt("uRayDepth", int32(q.RayDepth))
	setInt("uGridRes", gridRes)
	setFloat("uGridExt", gridExt)
	setFloat("uShadowSynNerf", q.ShadowIntensitySynNerf)
	setFloat("uShadowAO", q.ShadowIntensityAO)
	setFloat("uShadowNerfSyn", q.ShadowIntensityNerfSyn)
	setFloat("uSelfShadow", q.SelfShadowThreshold)
	setFloat("uVarCutoff", q.ShadowVarianceCutoff)
	gl.Uniform3f(gl.GetUniformLocation(s.program, gl.Str("uClearColor\x00")),
		float32(q.ClearColor.R), float32(q.ClearColor.G), float32(q.ClearColor.B))

	groupsX := uint32((w + 15) / 16)
	groupsY := uint32((h + 15) / 16)
	gl.DispatchCompute(groupsX, groupsY, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT)

	return s.readback(req)
}

// uploadCamera fills the std140 camera block: three vec4s then fov and
// aspect.
func (s *glState) uploadCamera(req *engine.SyntheticRequest, q *engine.Quality) {
	cam := req.Camera
	aspect := float32(float64(req.Width) / float64(req.Height))
	if cam.AspectRatio != 0 {
		aspect = float32(cam.AspectRatio)
	}
	block := [16]float32{
		float32(cam.Position.X), float32(cam.Position.Y), float32(cam.Position.Z), 0,
		float32(cam.Target.X), float32(cam.Target.Y), float32(cam.Target.Z), 0,
		float32(cam.Up.X), float32(cam.Up.Y), float32(cam.Up.Z), 0,
		float32(cam.FOV), aspect, 0, 0,
	}
	gl.BindBuffer(gl.UNIFORM_BUFFER, s.camUBO)
	gl.BufferData(gl.UNIFORM_BUFFER, len(block)*4, gl.Ptr(&block[0]), gl.DYNAMIC_DRAW)
}

// readback copies the accumulation and depth buffers and writes the running
// mean into the target framebuffer.
func (s *glState) readback(req *engine.SyntheticRequest) error {
	w, h := req.Width, req.Height
	n := w * h

	req.Target.Resize(w, h)

	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, s.accumSSBO)
	ptr := gl.MapBuffer(gl.SHADER_STORAGE_BUFFER, gl.READ_ONLY)
	if ptr == nil {
		return fmt.Errorf("gpu readback: map accumulation buffer failed")
	}
	accum := unsafe.Slice((*float32)(ptr), n*4)
	invN := float32(1)
	if req.Samples > 0 {
		invN = 1 / float32(req.Samples)
	}
	for i := 0; i < n*4; i++ {
		req.Target.Color[i] = accum[i] * invN
	}
	gl.UnmapBuffer(gl.SHADER_STORAGE_BUFFER)

	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, s.depthSSBO)
	ptr = gl.MapBuffer(gl.SHADER_STORAGE_BUFFER, gl.READ_ONLY)
	if ptr == nil {
		return fmt.Errorf("gpu readback: map depth buffer failed")
	}
	depth := unsafe.Slice((*float32)(ptr), n)
	copy(req.Target.Depth, depth)
	gl.UnmapBuffer(gl.SHADER_STORAGE_BUFFER)

	return nil
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// The compute shader mirrors the CPU kernel: Möller–Trumbore nearest hit
// with a strict upper bound, point-light Lambert shading, triangle shadow
// rays, density shadow marching with the variance cutoff, and ambient from
// the openness grid. uRayDepth additionally enables specular continuation
// bounces, which the CPU pass does not attempt.
const computeSrc = `
#version 430
layout(local_size_x = 16, local_size_y = 16) in;

uniform int uWidth;
uniform int uHeight;
uniform int uTriCount;
uniform int uLightCount;
uniform int uReset;
uniform int uFilter;       // 0 shaded, 1 depth, 2 normals, 3 shadow
uniform int uShadowSamples;
uniform int uRayDepth;
uniform int uGridRes;
uniform float uGridExt;
uniform float uShadowSynNerf;
uniform float uShadowAO;
uniform float uShadowNerfSyn;
uniform float uSelfShadow;
uniform float uVarCutoff;
uniform vec3 uClearColor;

layout(std140, binding = 1) uniform CameraBlock {
    vec4 camPos;
    vec4 camTarget;
    vec4 camUp;
    float camFov;
    float camAspect;
};

// Triangle: [v0 pad, v1 pad, v2 pad, n materialIndex] (16 floats)
layout(std430, binding = 2) buffer Triangles {
    float triData[];
};

// Material: [albedo.rgb roughness] (4 floats)
layout(std430, binding = 3) buffer Materials {
    float matData[];
};

// Light: [pos intensity, color pad] (8 floats)
layout(std430, binding = 4) buffer Lights {
    float lightData[];
};

// Openness grid: exp(-density) at uGridRes^3 cells over [-uGridExt, uGridExt]^3.
layout(std430, binding = 5) buffer DensityGrid {
    float gridData[];
};

// Progressive accumulation, width * height * 4 floats (RGBA).
layout(std430, binding = 6) buffer Accum {
    float accumData[];
};

layout(std430, binding = 7) buffer DepthOut {
    float depthData[];
};

const int TRI_STRIDE = 16;
const int MAT_STRIDE = 4;
const int LIGHT_STRIDE = 8;
const float MIN_RT_DIST = 1e-4;
const float MAX_RT_DIST = 1e4;
const float AMBIENT_BASE = 0.1;

struct Ray {
    vec3 orig;
    vec3 dir;
};

struct Hit {
    float t;
    vec3 p;
    vec3 n;
    int mat;
};

void readTriangle(int i, out vec3 v0, out vec3 v1, out vec3 v2, out vec3 n, out int mat) {
    int base = i * TRI_STRIDE;
    v0 = vec3(triData[base + 0], triData[base + 1], triData[base + 2]);
    v1 = vec3(triData[base + 4], triData[base + 5], triData[base + 6]);
    v2 = vec3(triData[base + 8], triData[base + 9], triData[base + 10]);
    n  = vec3(triData[base + 12], triData[base + 13], triData[base + 14]);
    mat = int(triData[base + 15] + 0.5);
}

void readLight(int i, out vec3 pos, out float intensity, out vec3 color) {
    int base = i * LIGHT_STRIDE;
    pos = vec3(lightData[base + 0], lightData[base + 1], lightData[base + 2]);
    intensity = lightData[base + 3];
    color = vec3(lightData[base + 4], lightData[base + 5], lightData[base + 6]);
}

bool intersectTri(Ray r, vec3 v0, vec3 v1, vec3 v2, float tMin, float tMax, out float t) {
    vec3 e1 = v1 - v0;
    vec3 e2 = v2 - v0;
    vec3 p = cross(r.dir, e2);
    float det = dot(e1, p);
    if (abs(det) < 1e-9) return false;
    float invDet = 1.0 / det;
    vec3 s = r.orig - v0;
    float u = dot(s, p) * invDet;
    if (u < 0.0 || u > 1.0) return false;
    vec3 q = cross(s, e1);
    float v = dot(r.dir, q) * invDet;
    if (v < 0.0 || u + v > 1.0) return false;
    t = dot(e2, q) * invDet;
    return t > tMin && t < tMax;
}

bool nearestHit(Ray r, float tMax, out Hit h) {
    float closest = tMax;
    bool found = false;
    for (int i = 0; i < uTriCount; i++) {
        vec3 v0, v1, v2, n;
        int mat;
        readTriangle(i, v0, v1, v2, n, mat);
        float t;
        if (!intersectTri(r, v0, v1, v2, MIN_RT_DIST, closest, t)) continue;
        closest = t;
        found = true;
        h.t = t;
        h.p = r.orig + t * r.dir;
        h.mat = mat;
        h.n = dot(n, r.dir) > 0.0 ? -n : n;
    }
    return found;
}

bool occluded(Ray r, float maxDist) {
    if (maxDist <= MIN_RT_DIST) return false;
    for (int i = 0; i < uTriCount; i++) {
        vec3 v0, v1, v2, n;
        int mat;
        readTriangle(i, v0, v1, v2, n, mat);
        float t;
        if (intersectTri(r, v0, v1, v2, MIN_RT_DIST, maxDist, t)) return true;
    }
    return false;
}

// Trilinear openness sample, clamped to the grid bounds.
float openness(vec3 p) {
    float res = float(uGridRes - 1);
    vec3 g = clamp((p + vec3(uGridExt)) / (2.0 * uGridExt), 0.0, 1.0) * res;
    ivec3 i0 = ivec3(min(floor(g), vec3(res - 1.0)));
    vec3 f = g - vec3(i0);
    int R = uGridRes;

    float acc = 0.0;
    for (int dz = 0; dz < 2; dz++) {
        for (int dy = 0; dy < 2; dy++) {
            for (int dx = 0; dx < 2; dx++) {
                ivec3 c = min(i0 + ivec3(dx, dy, dz), ivec3(R - 1));
                float w = (dx == 0 ? 1.0 - f.x : f.x)
                        * (dy == 0 ? 1.0 - f.y : f.y)
                        * (dz == 0 ? 1.0 - f.z : f.z);
                acc += w * gridData[(c.z * R + c.y) * R + c.x];
            }
        }
    }
    return acc;
}

float densityAt(vec3 p) {
    return -log(clamp(openness(p), 1e-6, 1.0));
}

float densityDarkness(vec3 origin, vec3 dir, float dist) {
    if (uShadowSynNerf <= 0.0 || uShadowSamples <= 0) return 0.0;
    float step = dist / float(uShadowSamples);
    if (step <= 0.0) return 0.0;

    float sum = 0.0;
    float sumSq = 0.0;
    float accum = 0.0;
    int counted = 0;
    for (int i = 0; i < uShadowSamples; i++) {
        float t = (float(i) + 0.5) * step;
        if (t < uSelfShadow) continue;
        float d = max(densityAt(origin + t * dir), 0.0);
        accum += d * step;
        sum += d;
        sumSq += d * d;
        counted++;
    }
    if (counted == 0) return 0.0;

    float mean = sum / float(counted);
    float variance = sumSq / float(counted) - mean * mean;
    if (variance > uVarCutoff) return 0.0;

    return uShadowSynNerf * (1.0 - exp(-accum));
}

float attenuation(vec3 p, vec3 n, vec3 lightPos) {
    vec3 toLight = lightPos - p;
    float dist = length(toLight);
    if (dist <= 1e-9) return 1.0;
    vec3 wi = toLight / dist;

    float att = 1.0;
    vec3 origin = p + n * (MIN_RT_DIST * 10.0);
    Ray shadowRay = Ray(origin, wi);
    if (occluded(shadowRay, dist - MIN_RT_DIST * 20.0)) {
        att *= 1.0 - uShadowNerfSyn;
    }
    att *= 1.0 - densityDarkness(origin, wi, dist);
    return max(att, 0.0);
}

vec3 directLight(Hit h, vec3 albedo) {
    vec3 outCol = vec3(0.0);
    for (int li = 0; li < uLightCount; li++) {
        vec3 lp, lc;
        float intensity;
        readLight(li, lp, intensity, lc);
        vec3 toLight = lp - h.p;
        float distSq = dot(toLight, toLight);
        if (distSq <= 1e-12) continue;
        float dist = sqrt(distSq);
        vec3 wi = toLight / dist;
        float nDotL = dot(h.n, wi);
        if (nDotL <= 0.0) continue;
        float att = attenuation(h.p, h.n, lp);
        outCol += albedo * lc * (nDotL * att * intensity / distSq);
    }
    return outCol;
}

void main() {
    int x = int(gl_GlobalInvocationID.x);
    int y = int(gl_GlobalInvocationID.y);
    if (x >= uWidth || y >= uHeight) return;
    int idx = y * uWidth + x;

    // Same viewport construction as the CPU ray generator; rows run top
    // to bottom in the output buffer.
    float aspect = camAspect != 0.0 ? camAspect : float(uWidth) / float(uHeight);
    float theta = camFov * 3.14159265359 / 180.0;
    float hh = tan(theta * 0.5);
    float viewportH = 2.0 * hh;
    float viewportW = aspect * viewportH;

    vec3 origin = camPos.xyz;
    vec3 w = normalize(origin - camTarget.xyz);
    vec3 u = normalize(cross(camUp.xyz, w));
    vec3 v = cross(w, u);
    vec3 horizontal = viewportW * u;
    vec3 vertical = viewportH * v;
    vec3 lowerLeft = origin - 0.5 * horizontal - 0.5 * vertical - w;

    float su = (float(x) + 0.5) / float(uWidth);
    float tv = (float(uHeight - 1 - y) + 0.5) / float(uHeight);
    Ray r = Ray(origin, normalize(lowerLeft + su * horizontal + tv * vertical - origin));

    vec4 rgba;
    float depth;
    Hit h;
    if (!nearestHit(r, MAX_RT_DIST, h)) {
        rgba = vec4(uClearColor, 0.0);
        depth = MAX_RT_DIST;
    } else if (uFilter == 1) {
        float dval = 1.0 / (1.0 + h.t);
        rgba = vec4(vec3(dval), 1.0);
        depth = h.t;
    } else if (uFilter == 2) {
        rgba = vec4(h.n * 0.5 + 0.5, 1.0);
        depth = h.t;
    } else if (uFilter == 3) {
        float att = 1.0;
        for (int li = 0; li < uLightCount; li++) {
            vec3 lp, lc;
            float intensity;
            readLight(li, lp, intensity, lc);
            att = min(att, attenuation(h.p, h.n, lp));
        }
        rgba = vec4(vec3(att), 1.0);
        depth = h.t;
    } else {
        depth = h.t;
        vec3 col = vec3(0.0);
        vec3 throughput = vec3(1.0);
        Ray cur = r;
        for (int bounce = 0; bounce < max(uRayDepth, 1); bounce++) {
            if (bounce > 0 && !nearestHit(cur, MAX_RT_DIST, h)) break;

            vec3 albedo = vec3(0.8);
            float rough = 0.0;
            if (h.mat >= 0 && h.mat * MAT_STRIDE + 3 < matData.length()) {
                int mb = h.mat * MAT_STRIDE;
                albedo = vec3(matData[mb], matData[mb + 1], matData[mb + 2]);
                rough = matData[mb + 3];
            }

            col += throughput * directLight(h, albedo);

            float open = openness(h.p);
            float amb = AMBIENT_BASE * (1.0 - rough * 0.5)
                      * (1.0 - uShadowAO * (1.0 - open));
            col += throughput * albedo * amb;

            // Specular continuation for glossy materials.
            float spec = 1.0 - rough;
            if (spec < 0.05) break;
            throughput *= albedo * spec * 0.5;
            vec3 refl = reflect(cur.dir, h.n);
            cur = Ray(h.p + h.n * (MIN_RT_DIST * 10.0), normalize(refl));
        }
        rgba = vec4(clamp(col, 0.0, 1.0), 1.0);
    }

    int base = idx * 4;
    if (uReset != 0) {
        accumData[base + 0] = rgba.r;
        accumData[base + 1] = rgba.g;
        accumData[base + 2] = rgba.b;
        accumData[base + 3] = rgba.a;
    } else {
        accumData[base + 0] += rgba.r;
        accumData[base + 1] += rgba.g;
        accumData[base + 2] += rgba.b;
        accumData[base + 3] += rgba.a;
    }
    depthData[idx] = depth;
}
`
