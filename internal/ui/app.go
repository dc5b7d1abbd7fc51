package ui

import (
	"fmt"
	"image"
	"log"
	"strconv"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/trxe/instant-ngp/internal/engine"
	"github.com/trxe/instant-ngp/internal/engine/gpu"
	"github.com/trxe/instant-ngp/internal/scene"
	"github.com/trxe/instant-ngp/internal/stream"
)

// Options configures the interactive session.
type Options struct {
	ScenePath string
	ServeAddr string // when non-empty, also stream frames to browsers
	OutDir    string // recording output directory
}

// Run starts the interactive UI. It owns the frame loop; scene and quality
// edits from widgets are applied between frames under a shared mutex.
func Run(neuralField engine.NeuralRenderer, opts Options) error {
	useGPU := engine.GetBackend() == engine.BackendGPU
	log.Printf("ui: starting with scene %q, gpu=%v", opts.ScenePath, useGPU)

	a := app.New()
	w := a.NewWindow("Hybrid Renderer")

	sc, err := scene.Load(opts.ScenePath)
	if err != nil {
		return err
	}

	var pass engine.SyntheticPass
	if useGPU {
		pass = gpu.NewPass(neuralField)
	}
	rend := engine.NewRenderer(sc, neuralField, pass)
	if opts.OutDir != "" {
		rend.Recorder.Dir = opts.OutDir
	}

	var srv *stream.Server
	if opts.ServeAddr != "" {
		srv = stream.NewServer(opts.ServeAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.Printf("preview server: %v", err)
			}
		}()
	}

	// mu guards the scene, the renderer and the quality copy below against
	// the frame loop.
	var mu sync.Mutex
	quality := rend.Quality()

	if srv != nil {
		srv.OnQuality = func(key string, value float64) {
			mu.Lock()
			quality = quality.ApplyTable(map[string]float64{key: value})
			rend.SetQuality(quality)
			mu.Unlock()
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, rend.DisplayWidth, rend.DisplayHeight))
	imgCanvas := canvas.NewImageFromImage(img)
	imgCanvas.FillMode = canvas.ImageFillContain
	imgCanvas.SetMinSize(fyne.NewSize(960, 540))

	status := widget.NewLabel("Idle")
	fpsLabel := widget.NewLabel("FPS: -")
	samplesLabel := widget.NewLabel("Samples: 0")

	parseF := func(e *widget.Entry, def float64) float64 {
		v, err := strconv.ParseFloat(e.Text, 64)
		if err != nil {
			return def
		}
		return v
	}

	// --- Camera controls ---
	camPosX := widget.NewEntry()
	camPosY := widget.NewEntry()
	camPosZ := widget.NewEntry()
	camLookX := widget.NewEntry()
	camLookY := widget.NewEntry()
	camLookZ := widget.NewEntry()
	camFOV := widget.NewEntry()

	refreshCamera := func() {
		cam := sc.Camera
		camPosX.SetText(fmt.Sprintf("%.2f", cam.Position.X))
		camPosY.SetText(fmt.Sprintf("%.2f", cam.Position.Y))
		camPosZ.SetText(fmt.Sprintf("%.2f", cam.Position.Z))
		camLookX.SetText(fmt.Sprintf("%.2f", cam.Target.X))
		camLookY.SetText(fmt.Sprintf("%.2f", cam.Target.Y))
		camLookZ.SetText(fmt.Sprintf("%.2f", cam.Target.Z))
		camFOV.SetText(fmt.Sprintf("%.1f", cam.FOV))
	}
	refreshCamera()

	applyCamera := widget.NewButton("Apply camera", func() {
		mu.Lock()
		cam := &sc.Camera
		cam.Position.X = parseF(camPosX, cam.Position.X)
		cam.Position.Y = parseF(camPosY, cam.Position.Y)
		cam.Position.Z = parseF(camPosZ, cam.Position.Z)
		cam.Target.X = parseF(camLookX, cam.Target.X)
		cam.Target.Y = parseF(camLookY, cam.Target.Y)
		cam.Target.Z = parseF(camLookZ, cam.Target.Z)
		cam.FOV = parseF(camFOV, cam.FOV)
		cam.MarkDirty()
		mu.Unlock()
		status.SetText("Camera updated")
	})

	cameraBox := container.NewVBox(
		widget.NewLabel("Camera"),
		container.NewGridWithColumns(2,
			widget.NewLabel("Pos X"), camPosX,
			widget.NewLabel("Pos Y"), camPosY,
			widget.NewLabel("Pos Z"), camPosZ,
			widget.NewLabel("Look X"), camLookX,
			widget.NewLabel("Look Y"), camLookY,
			widget.NewLabel("Look Z"), camLookZ,
			widget.NewLabel("FOV"), camFOV,
		),
		applyCamera,
	)

	// --- Object transform controls, addressed by stable index ---
	selectedObj := -1

	objList := widget.NewList(
		func() int { return len(sc.Objects) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			if i < 0 || i >= len(sc.Objects) {
				return
			}
			obj := sc.Object(i)
			o.(*widget.Label).SetText(fmt.Sprintf("%s (%d tris)", obj.ID, len(obj.Triangles)))
		},
	)

	posX := widget.NewEntry()
	posY := widget.NewEntry()
	posZ := widget.NewEntry()
	rotX := widget.NewEntry()
	rotY := widget.NewEntry()
	rotZ := widget.NewEntry()
	sclX := widget.NewEntry()
	sclY := widget.NewEntry()
	sclZ := widget.NewEntry()

	loadObjForm := func(i int) {
		obj := sc.Object(i)
		if obj == nil {
			return
		}
		posX.SetText(fmt.Sprintf("%.2f", obj.Position.X))
		posY.SetText(fmt.Sprintf("%.2f", obj.Position.Y))
		posZ.SetText(fmt.Sprintf("%.2f", obj.Position.Z))
		rotX.SetText(fmt.Sprintf("%.1f", obj.Rotation.X))
		rotY.SetText(fmt.Sprintf("%.1f", obj.Rotation.Y))
		rotZ.SetText(fmt.Sprintf("%.1f", obj.Rotation.Z))
		sclX.SetText(fmt.Sprintf("%.2f", obj.Scale.X))
		sclY.SetText(fmt.Sprintf("%.2f", obj.Scale.Y))
		sclZ.SetText(fmt.Sprintf("%.2f", obj.Scale.Z))
	}

	objList.OnSelected = func(i widget.ListItemID) {
		selectedObj = i
		loadObjForm(i)
	}

	applyObj := widget.NewButton("Apply transform", func() {
		mu.Lock()
		obj := sc.Object(selectedObj)
		if obj != nil {
			obj.Position.X = parseF(posX, obj.Position.X)
			obj.Position.Y = parseF(posY, obj.Position.Y)
			obj.Position.Z = parseF(posZ, obj.Position.Z)
			obj.Rotation.X = parseF(rotX, obj.Rotation.X)
			obj.Rotation.Y = parseF(rotY, obj.Rotation.Y)
			obj.Rotation.Z = parseF(rotZ, obj.Rotation.Z)
			obj.Scale.X = parseF(sclX, obj.Scale.X)
			obj.Scale.Y = parseF(sclY, obj.Scale.Y)
			obj.Scale.Z = parseF(sclZ, obj.Scale.Z)
			obj.MarkDirty()
		}
		mu.Unlock()
		status.SetText("Object updated")
	})

	objBox := container.NewVBox(
		widget.NewLabel("Objects"),
		container.NewGridWrap(fyne.NewSize(240, 120), objList),
		container.NewGridWithColumns(2,
			widget.NewLabel("Pos X"), posX,
			widget.NewLabel("Pos Y"), posY,
			widget.NewLabel("Pos Z"), posZ,
			widget.NewLabel("Rot X"), rotX,
			widget.NewLabel("Rot Y"), rotY,
			widget.NewLabel("Rot Z"), rotZ,
			widget.NewLabel("Scale X"), sclX,
			widget.NewLabel("Scale Y"), sclY,
			widget.NewLabel("Scale Z"), sclZ,
		),
		applyObj,
	)

	// --- Light controls ---
	selectedLight := -1
	lightList := widget.NewList(
		func() int { return len(sc.Lights) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			if i < 0 || i >= len(sc.Lights) {
				return
			}
			l := sc.Light(i)
			o.(*widget.Label).SetText(fmt.Sprintf("%s (%.1f)", l.ID, l.Intensity))
		},
	)
	lightX := widget.NewEntry()
	lightY := widget.NewEntry()
	lightZ := widget.NewEntry()
	lightIntensity := widget.NewEntry()

	lightList.OnSelected = func(i widget.ListItemID) {
		selectedLight = i
		l := sc.Light(i)
		if l == nil {
			return
		}
		lightX.SetText(fmt.Sprintf("%.2f", l.Position.X))
		lightY.SetText(fmt.Sprintf("%.2f", l.Position.Y))
		lightZ.SetText(fmt.Sprintf("%.2f", l.Position.Z))
		lightIntensity.SetText(fmt.Sprintf("%.2f", l.Intensity))
	}

	applyLight := widget.NewButton("Apply light", func() {
		mu.Lock()
		l := sc.Light(selectedLight)
		if l != nil {
			l.Position.X = parseF(lightX, l.Position.X)
			l.Position.Y = parseF(lightY, l.Position.Y)
			l.Position.Z = parseF(lightZ, l.Position.Z)
			l.Intensity = parseF(lightIntensity, l.Intensity)
			l.MarkDirty()
		}
		mu.Unlock()
		status.SetText("Light updated")
	})

	lightBox := container.NewVBox(
		widget.NewLabel("Lights"),
		container.NewGridWrap(fyne.NewSize(240, 80), lightList),
		container.NewGridWithColumns(2,
			widget.NewLabel("Pos X"), lightX,
			widget.NewLabel("Pos Y"), lightY,
			widget.NewLabel("Pos Z"), lightZ,
			widget.NewLabel("Intensity"), lightIntensity,
		),
		applyLight,
	)

	// --- Quality controls ---
	qualityEntry := func(key string, get func(engine.Quality) float64) (*widget.Entry, func()) {
		e := widget.NewEntry()
		e.SetText(fmt.Sprintf("%.3g", get(quality)))
		e.OnSubmitted = func(text string) {
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return
			}
			mu.Lock()
			quality = quality.ApplyTable(map[string]float64{key: v})
			rend.SetQuality(quality)
			mu.Unlock()
		}
		refresh := func() { e.SetText(fmt.Sprintf("%.3g", get(quality))) }
		return e, refresh
	}

	shadowSN, _ := qualityEntry("shadow_intensity_syn_nerf", func(q engine.Quality) float64 { return q.ShadowIntensitySynNerf })
	shadowNS, _ := qualityEntry("shadow_intensity_nerf_syn", func(q engine.Quality) float64 { return q.ShadowIntensityNerfSyn })
	shadowAO, _ := qualityEntry("shadow_intensity_ao", func(q engine.Quality) float64 { return q.ShadowIntensityAO })
	synScale, _ := qualityEntry("syn_scale", func(q engine.Quality) float64 { return q.SynScale })
	foveaStart, _ := qualityEntry("fovea_start", func(q engine.Quality) float64 { return q.FoveaStart })
	foveaEnd, _ := qualityEntry("fovea_end", func(q engine.Quality) float64 { return q.FoveaEnd })
	foveaEdge, _ := qualityEntry("fovea_edge", func(q engine.Quality) float64 { return q.FoveaEdge })
	lensAdjust, _ := qualityEntry("lens_adjust", func(q engine.Quality) float64 { return q.LensAdjust })

	filterSelect := widget.NewSelect([]string{"shaded", "depth", "normals", "shadow"}, func(name string) {
		mu.Lock()
		quality.Filter = engine.ParseFilterMode(name)
		rend.SetQuality(quality)
		mu.Unlock()
	})
	filterSelect.SetSelected("shaded")

	recordCheck := widget.NewCheck("Record frames", func(on bool) {
		mu.Lock()
		rend.Recording = on
		mu.Unlock()
	})

	animateCheck := widget.NewCheck("Animate lights", func(bool) {})

	qualityBox := container.NewVBox(
		widget.NewLabel("Quality"),
		container.NewGridWithColumns(2,
			widget.NewLabel("Shadow syn→nerf"), shadowSN,
			widget.NewLabel("Shadow nerf→syn"), shadowNS,
			widget.NewLabel("Shadow AO"), shadowAO,
			widget.NewLabel("Syn scale"), synScale,
			widget.NewLabel("Fovea start"), foveaStart,
			widget.NewLabel("Fovea end"), foveaEnd,
			widget.NewLabel("Fovea edge"), foveaEdge,
			widget.NewLabel("Lens adjust"), lensAdjust,
			widget.NewLabel("Filter"), filterSelect,
		),
		recordCheck,
		animateCheck,
	)

	controls := container.NewVBox(
		cameraBox,
		widget.NewSeparator(),
		objBox,
		widget.NewSeparator(),
		lightBox,
		widget.NewSeparator(),
		qualityBox,
		widget.NewSeparator(),
		status, fpsLabel, samplesLabel,
	)

	content := container.NewHSplit(
		container.NewVScroll(controls),
		imgCanvas,
	)
	content.SetOffset(0.28)
	w.SetContent(content)

	// Frame loop. The renderer is single-threaded by contract; widget
	// callbacks only touch it under mu.
	stopCh := make(chan struct{})
	go func() {
		last := time.Now()
		for {
			select {
			case <-stopCh:
				return
			default:
			}

			now := time.Now()
			dt := now.Sub(last).Seconds()
			last = now

			mu.Lock()
			if animateCheck.Checked {
				sc.StepAnimations(dt)
			}
			fb, err := rend.RenderFrame()
			samples := rend.Samples()
			mu.Unlock()
			if err != nil {
				log.Printf("render: %v", err)
				status.SetText(fmt.Sprintf("Error: %v", err))
				return
			}

			frame := engine.ToImage(fb)
			imgCanvas.Image = frame
			imgCanvas.Refresh()
			if srv != nil {
				srv.Broadcast(fb)
			}

			elapsed := time.Since(now).Seconds()
			if elapsed > 0 {
				fpsLabel.SetText(fmt.Sprintf("FPS: %.1f", 1.0/elapsed))
			}
			samplesLabel.SetText(fmt.Sprintf("Samples: %d", samples))
		}
	}()

	w.SetOnClosed(func() { close(stopCh) })
	w.ShowAndRun()
	return nil
}
