package engine

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/trxe/instant-ngp/internal/scene"
)

// WorldTriangle is one triangle transformed into world space, the unit the
// intersection kernel consumes. The normal is unit length and derived from
// the transformed winding so non-uniform scale stays correct.
type WorldTriangle struct {
	V0, V1, V2 mgl64.Vec3
	N          mgl64.Vec3
	Material   int
}

// ObjectTransform is the packed per-object record mirroring the GPU layout:
// a triangle range into the world-triangle array, the model matrix, and the
// resolved material index.
type ObjectTransform struct {
	TriStart int
	TriCount int
	Model    mgl64.Mat4
	Material int
}

// PackedMaterial mirrors scene.Material with the string ID resolved away.
type PackedMaterial struct {
	Albedo    [3]float64
	Roughness float64
}

// PackedLight mirrors scene.Light with the orbit animation already applied.
type PackedLight struct {
	Position  mgl64.Vec3
	Color     [3]float64
	Intensity float64
}

// SceneBuffer holds the device-facing mirrors of the CPU entities. It always
// reflects the CPU state as of the last Sync and is never partially updated
// mid-frame.
type SceneBuffer struct {
	Transforms []ObjectTransform
	Triangles  []WorldTriangle
	Materials  []PackedMaterial
	Lights     []PackedLight
}

// Device receives whole-category uploads from staging. The CPU device just
// retains the slices; the GPU device copies them into storage buffers and
// reports allocation failures, which the caller treats as fatal.
type Device interface {
	UploadObjects(transforms []ObjectTransform, tris []WorldTriangle) error
	UploadMaterials(mats []PackedMaterial) error
	UploadLights(lights []PackedLight) error
}

// Staging owns the CPU→device mirror of the scene. It is the single reader
// and clearer of entity dirty flags.
type Staging struct {
	sc  *scene.Scene
	buf SceneBuffer
}

// NewStaging creates staging for the given scene.
func NewStaging(sc *scene.Scene) *Staging {
	return &Staging{sc: sc}
}

// Buffer returns the current device mirror. Valid until the next Sync.
func (st *Staging) Buffer() *SceneBuffer { return &st.buf }

// Sync scans every entity category once per frame. A category with any dirty
// entity is rebuilt whole and re-uploaded; rebuilds are never incremental
// because entity counts are small relative to pixel counts. All dirty flags
// are cleared and the return value reports whether anything changed.
func (st *Staging) Sync(dev Device) (bool, error) {
	changed := false

	objectsDirty := false
	for i := range st.sc.Objects {
		if st.sc.Objects[i].Dirty() {
			objectsDirty = true
			break
		}
	}
	if objectsDirty {
		st.rebuildObjects()
		if err := dev.UploadObjects(st.buf.Transforms, st.buf.Triangles); err != nil {
			return false, fmt.Errorf("upload objects: %w", err)
		}
		for i := range st.sc.Objects {
			st.sc.Objects[i].ClearDirty()
		}
		changed = true
	}

	materialsDirty := false
	for i := range st.sc.Materials {
		if st.sc.Materials[i].Dirty() {
			materialsDirty = true
			break
		}
	}
	if materialsDirty {
		st.rebuildMaterials()
		if err := dev.UploadMaterials(st.buf.Materials); err != nil {
			return false, fmt.Errorf("upload materials: %w", err)
		}
		for i := range st.sc.Materials {
			st.sc.Materials[i].ClearDirty()
		}
		changed = true
	}

	lightsDirty := false
	for i := range st.sc.Lights {
		if st.sc.Lights[i].Dirty() {
			lightsDirty = true
			break
		}
	}
	if lightsDirty {
		st.rebuildLights()
		if err := dev.UploadLights(st.buf.Lights); err != nil {
			return false, fmt.Errorf("upload lights: %w", err)
		}
		for i := range st.sc.Lights {
			st.sc.Lights[i].ClearDirty()
		}
		changed = true
	}

	return changed, nil
}

// modelMatrix builds translation * Rz * Ry * Rx * scale from the object's
// transform fields (rotation in degrees).
func modelMatrix(o *scene.Object) mgl64.Mat4 {
	rx := mgl64.DegToRad(o.Rotation.X)
	ry := mgl64.DegToRad(o.Rotation.Y)
	rz := mgl64.DegToRad(o.Rotation.Z)

	m := mgl64.Translate3D(o.Position.X, o.Position.Y, o.Position.Z)
	m = m.Mul4(mgl64.HomogRotate3DZ(rz))
	m = m.Mul4(mgl64.HomogRotate3DY(ry))
	m = m.Mul4(mgl64.HomogRotate3DX(rx))
	m = m.Mul4(mgl64.Scale3D(o.Scale.X, o.Scale.Y, o.Scale.Z))
	return m
}

func (st *Staging) rebuildObjects() {
	st.buf.Transforms = st.buf.Transforms[:0]
	st.buf.Triangles = st.buf.Triangles[:0]

	for i := range st.sc.Objects {
		o := &st.sc.Objects[i]
		model := modelMatrix(o)
		matIdx := st.sc.MaterialIndex(o.MaterialID)

		start := len(st.buf.Triangles)
		for _, tri := range o.Triangles {
			v0 := mgl64.TransformCoordinate(mgl64.Vec3{tri.V0.X, tri.V0.Y, tri.V0.Z}, model)
			v1 := mgl64.TransformCoordinate(mgl64.Vec3{tri.V1.X, tri.V1.Y, tri.V1.Z}, model)
			v2 := mgl64.TransformCoordinate(mgl64.Vec3{tri.V2.X, tri.V2.Y, tri.V2.Z}, model)

			n := v1.Sub(v0).Cross(v2.Sub(v0))
			if l := n.Len(); l > 0 {
				n = n.Mul(1 / l)
			}
			st.buf.Triangles = append(st.buf.Triangles, WorldTriangle{
				V0: v0, V1: v1, V2: v2, N: n, Material: matIdx,
			})
		}

		st.buf.Transforms = append(st.buf.Transforms, ObjectTransform{
			TriStart: start,
			TriCount: len(o.Triangles),
			Model:    model,
			Material: matIdx,
		})
	}
}

func (st *Staging) rebuildMaterials() {
	st.buf.Materials = st.buf.Materials[:0]
	for i := range st.sc.Materials {
		m := &st.sc.Materials[i]
		st.buf.Materials = append(st.buf.Materials, PackedMaterial{
			Albedo:    [3]float64{m.Albedo.R, m.Albedo.G, m.Albedo.B},
			Roughness: m.Roughness,
		})
	}
}

func (st *Staging) rebuildLights() {
	st.buf.Lights = st.buf.Lights[:0]
	for i := range st.sc.Lights {
		l := &st.sc.Lights[i]
		pos := mgl64.Vec3{l.Position.X, l.Position.Y, l.Position.Z}
		if l.OrbitRadius > 0 {
			a := l.OrbitAngle()
			pos = pos.Add(mgl64.Vec3{l.OrbitRadius * math.Cos(a), 0, l.OrbitRadius * math.Sin(a)})
		}
		st.buf.Lights = append(st.buf.Lights, PackedLight{
			Position:  pos,
			Color:     [3]float64{l.Color.R, l.Color.G, l.Color.B},
			Intensity: l.Intensity,
		})
	}
}

// CPUDevice is the in-process device: uploads are no-ops beyond the slice
// handoff staging already performed.
type CPUDevice struct{}

func (CPUDevice) UploadObjects([]ObjectTransform, []WorldTriangle) error { return nil }
func (CPUDevice) UploadMaterials([]PackedMaterial) error                { return nil }
func (CPUDevice) UploadLights([]PackedLight) error                      { return nil }
