package scene

import (
	"math"
	"path/filepath"
	"testing"
)

func validScene() *Scene {
	return &Scene{
		Name: "test",
		Camera: Camera{
			Position: Vec3{Z: 5},
			Target:   Vec3{},
			Up:       Vec3{Y: 1},
			FOV:      60,
		},
		Objects: []Object{{
			ID: "tri",
			Triangles: []Triangle{{
				V0: Vec3{X: -1},
				V1: Vec3{X: 1},
				V2: Vec3{Y: 1},
			}},
			MaterialID: "white",
		}},
		Materials: []Material{{
			ID:     "white",
			Albedo: Color{R: 1, G: 1, B: 1},
		}},
		Lights: []Light{{
			ID:       "key",
			Position: Vec3{Y: 3},
		}},
		Quality: map[string]float64{"shadow_samples": 8},
		Filter:  "depth",
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	if err := Save(path, validScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Name != "test" || len(sc.Objects) != 1 || len(sc.Lights) != 1 {
		t.Fatalf("round trip lost entities: %+v", sc)
	}
	if sc.Quality["shadow_samples"] != 8 || sc.Filter != "depth" {
		t.Fatalf("round trip lost tuning: %v %q", sc.Quality, sc.Filter)
	}
	if sc.Objects[0].Triangles[0].V1.X != 1 {
		t.Fatalf("triangle mangled: %+v", sc.Objects[0].Triangles[0])
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	if err := Save(path, validScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Objects[0].Scale != (Vec3{X: 1, Y: 1, Z: 1}) {
		t.Fatalf("zero scale should default to 1, got %+v", sc.Objects[0].Scale)
	}
	l := sc.Lights[0]
	if l.Intensity != 1 || l.Color != (Color{R: 1, G: 1, B: 1}) {
		t.Fatalf("light defaults not applied: %+v", l)
	}
}

func TestLoadMarksEverythingDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	if err := Save(path, validScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !sc.Camera.Dirty() || !sc.Objects[0].Dirty() || !sc.Materials[0].Dirty() || !sc.Lights[0].Dirty() {
		t.Fatal("a freshly loaded scene must be fully dirty")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestValidateRejectsBrokenScenes(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Scene)
	}{
		{"zero fov", func(s *Scene) { s.Camera.FOV = 0 }},
		{"missing up", func(s *Scene) { s.Camera.Up = Vec3{} }},
		{"degenerate view", func(s *Scene) { s.Camera.Target = s.Camera.Position }},
		{"objects without materials", func(s *Scene) { s.Materials = nil }},
		{"empty triangle list", func(s *Scene) { s.Objects[0].Triangles = nil }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sc := validScene()
			c.mutate(sc)
			if err := sc.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
	if err := validScene().Validate(); err != nil {
		t.Fatalf("valid scene rejected: %v", err)
	}
}

func TestMaterialIndexFallsBackToZero(t *testing.T) {
	sc := validScene()
	sc.Materials = append(sc.Materials, Material{ID: "red"})
	if i := sc.MaterialIndex("red"); i != 1 {
		t.Fatalf("MaterialIndex(red) = %d", i)
	}
	if i := sc.MaterialIndex("does-not-exist"); i != 0 {
		t.Fatalf("dangling ID should resolve to 0, got %d", i)
	}
}

func TestEntityLookupBounds(t *testing.T) {
	sc := validScene()
	if sc.Object(0) == nil || sc.Light(0) == nil || sc.Material(0) == nil {
		t.Fatal("in-range lookups returned nil")
	}
	if sc.Object(-1) != nil || sc.Object(5) != nil || sc.Light(1) != nil || sc.Material(99) != nil {
		t.Fatal("out-of-range lookups must return nil")
	}
}

func TestStepAnimationsMovesOrbitingLightsOnly(t *testing.T) {
	sc := validScene()
	sc.Lights = append(sc.Lights, Light{
		ID:          "orbiter",
		OrbitRadius: 2,
		OrbitSpeed:  math.Pi,
	})
	sc.StepAnimations(0.5)

	if sc.Lights[0].Dirty() {
		t.Fatal("static light should not be marked dirty by animation")
	}
	if !sc.Lights[1].Dirty() {
		t.Fatal("orbiting light should be marked dirty")
	}
	if got := sc.Lights[1].OrbitAngle(); got != math.Pi*0.5 {
		t.Fatalf("orbit angle = %v, want pi/2", got)
	}
}
