package scene

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads a Scene from a JSON file. Optional keys keep their zero-value
// defaults; structurally required keys (camera, at least one material when
// any object references one) fail the load before the render loop starts.
func Load(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scene: %w", err)
	}
	defer f.Close()

	var sc Scene
	if err := json.NewDecoder(f).Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scene: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("validate scene: %w", err)
	}
	sc.applyDefaults()
	sc.MarkAllDirty()
	return &sc, nil
}

// Save writes a Scene to a JSON file.
func Save(path string, sc *Scene) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create scene: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sc); err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}
	return nil
}

// Validate checks the keys the renderer cannot default.
func (s *Scene) Validate() error {
	if s.Camera.FOV <= 0 {
		return fmt.Errorf("camera.fov must be set and positive, got %v", s.Camera.FOV)
	}
	if s.Camera.Up == (Vec3{}) {
		return fmt.Errorf("camera.up must be set")
	}
	if s.Camera.Position == s.Camera.Target {
		return fmt.Errorf("camera.position and camera.target must differ")
	}
	if len(s.Objects) > 0 && len(s.Materials) == 0 {
		return fmt.Errorf("scene has %d objects but no materials", len(s.Objects))
	}
	for i := range s.Objects {
		if len(s.Objects[i].Triangles) == 0 {
			return fmt.Errorf("object %q has no triangles", s.Objects[i].ID)
		}
	}
	return nil
}

// applyDefaults fills the optional per-entity fields that JSON zero values
// would otherwise break: a zero scale collapses geometry, a zero-intensity
// light is invisible.
func (s *Scene) applyDefaults() {
	for i := range s.Objects {
		o := &s.Objects[i]
		if o.Scale == (Vec3{}) {
			o.Scale = Vec3{X: 1, Y: 1, Z: 1}
		}
	}
	for i := range s.Lights {
		l := &s.Lights[i]
		if l.Intensity == 0 {
			l.Intensity = 1
		}
		if l.Color == (Color{}) {
			l.Color = Color{R: 1, G: 1, B: 1}
		}
	}
}
