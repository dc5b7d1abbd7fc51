package scene

// Vec3 represents a simple 3D vector or point.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Color is an RGB color in linear space.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Triangle is a single triangle in object space. The geometric normal is
// implied by the winding order (v0, v1, v2).
type Triangle struct {
	V0 Vec3 `json:"v0"`
	V1 Vec3 `json:"v1"`
	V2 Vec3 `json:"v2"`
}

// Camera describes the viewpoint for the renderer.
type Camera struct {
	Position Vec3    `json:"position"`
	Target   Vec3    `json:"target"`
	Up       Vec3    `json:"up"`
	FOV      float64 `json:"fov"`

	AspectRatio float64 `json:"aspect_ratio"`

	dirty bool
}

// MarkDirty flags the camera as changed since the last staging sync.
func (c *Camera) MarkDirty() { c.dirty = true }

// Dirty reports whether the camera changed since the last staging sync.
func (c *Camera) Dirty() bool { return c.dirty }

// ClearDirty resets the camera change flag. Only staging should call this.
func (c *Camera) ClearDirty() { c.dirty = false }

// Material describes surface appearance. Roughness is carried through to the
// shading kernel but currently only modulates the ambient term; it is kept so
// scene files stay forward-compatible.
type Material struct {
	ID        string  `json:"id"`
	Albedo    Color   `json:"albedo"`
	Roughness float64 `json:"roughness"`

	dirty bool
}

func (m *Material) MarkDirty()  { m.dirty = true }
func (m *Material) Dirty() bool { return m.dirty }
func (m *Material) ClearDirty() { m.dirty = false }

// Light is a point light source. Orbit animation, when enabled, moves the
// light on a horizontal circle around its rest position each animation step.
type Light struct {
	ID        string  `json:"id"`
	Position  Vec3    `json:"position"`
	Color     Color   `json:"color"`
	Intensity float64 `json:"intensity"`

	OrbitRadius float64 `json:"orbit_radius"`
	OrbitSpeed  float64 `json:"orbit_speed"`

	orbitAngle float64
	dirty      bool
}

func (l *Light) MarkDirty()  { l.dirty = true }
func (l *Light) Dirty() bool { return l.dirty }
func (l *Light) ClearDirty() { l.dirty = false }

// StepAnimation advances the orbit animation by dt seconds and marks the
// light dirty when it actually moved. Called on the host thread between
// frames, never concurrently with a render pass.
func (l *Light) StepAnimation(dt float64) {
	if l.OrbitRadius <= 0 || l.OrbitSpeed == 0 {
		return
	}
	l.orbitAngle += l.OrbitSpeed * dt
	l.dirty = true
}

// OrbitAngle returns the current animation phase in radians.
func (l *Light) OrbitAngle() float64 { return l.orbitAngle }

// Object is a triangle-mesh entity with a rigid+scale transform.
type Object struct {
	ID        string     `json:"id"`
	Triangles []Triangle `json:"triangles"`

	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"` // Euler angles in degrees, applied Z*Y*X
	Scale    Vec3 `json:"scale"`

	MaterialID string `json:"material_id"`

	dirty bool
}

func (o *Object) MarkDirty()  { o.dirty = true }
func (o *Object) Dirty() bool { return o.dirty }
func (o *Object) ClearDirty() { o.dirty = false }

// Scene holds everything needed to render a frame. Entities are addressed by
// stable indices; callers resolve an index to a pointer only at the point of
// use within a single frame and never retain the pointer across frames.
type Scene struct {
	Name      string     `json:"name"`
	Camera    Camera     `json:"camera"`
	Objects   []Object   `json:"objects"`
	Materials []Material `json:"materials"`
	Lights    []Light    `json:"lights"`

	Quality map[string]float64 `json:"quality,omitempty"`
	Filter  string             `json:"filter,omitempty"`

	ClearColor Color `json:"clear_color"`
}

// Object returns the object at the given stable index, or nil when out of
// range. The returned pointer is only valid until the entity slices are next
// resized (scene reload).
func (s *Scene) Object(i int) *Object {
	if i < 0 || i >= len(s.Objects) {
		return nil
	}
	return &s.Objects[i]
}

// Light returns the light at the given stable index, or nil when out of range.
func (s *Scene) Light(i int) *Light {
	if i < 0 || i >= len(s.Lights) {
		return nil
	}
	return &s.Lights[i]
}

// Material returns the material at the given stable index, or nil when out of range.
func (s *Scene) Material(i int) *Material {
	if i < 0 || i >= len(s.Materials) {
		return nil
	}
	return &s.Materials[i]
}

// MaterialIndex resolves a material ID to its stable index. Unknown IDs
// resolve to 0 so a dangling reference renders with the first material
// instead of failing the frame.
func (s *Scene) MaterialIndex(id string) int {
	for i := range s.Materials {
		if s.Materials[i].ID == id {
			return i
		}
	}
	return 0
}

// MarkAllDirty flags every entity category. Called after load so the first
// staging sync uploads the whole scene.
func (s *Scene) MarkAllDirty() {
	s.Camera.MarkDirty()
	for i := range s.Objects {
		s.Objects[i].MarkDirty()
	}
	for i := range s.Materials {
		s.Materials[i].MarkDirty()
	}
	for i := range s.Lights {
		s.Lights[i].MarkDirty()
	}
}

// StepAnimations advances all light animations by dt seconds.
func (s *Scene) StepAnimations(dt float64) {
	for i := range s.Lights {
		s.Lights[i].StepAnimation(dt)
	}
}
