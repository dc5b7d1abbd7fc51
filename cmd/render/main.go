package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/trxe/instant-ngp/internal/engine"
	"github.com/trxe/instant-ngp/internal/engine/gpu"
	"github.com/trxe/instant-ngp/internal/neural"
	"github.com/trxe/instant-ngp/internal/scene"
	"github.com/trxe/instant-ngp/internal/stream"
	"github.com/trxe/instant-ngp/internal/ui"
)

func main() {
	log.Println("hybrid: starting main()")

	scenePath := flag.String("scene", "scenes/example_hybrid.json", "path to scene JSON file")
	useGPU := flag.Bool("gpu", false, "use the GPU compute backend")
	headless := flag.Bool("headless", false, "render without UI and save PNG frames")
	frames := flag.Int("frames", 1, "number of frames to accumulate in headless mode")
	output := flag.String("out", "output.png", "output PNG file for headless render")
	record := flag.Bool("record", false, "record every composited frame")
	recordDir := flag.String("record-dir", ".", "directory for recorded frames")
	serveAddr := flag.String("serve", "", "address for the websocket preview server, e.g. :8080")
	displayW := flag.Int("width", 1280, "display (composited) width")
	displayH := flag.Int("height", 720, "display (composited) height")

	flag.Parse()
	log.Printf("flags: scene=%s gpu=%v headless=%v frames=%d out=%s serve=%q",
		*scenePath, *useGPU, *headless, *frames, *output, *serveAddr)

	if *useGPU {
		engine.SetBackend(engine.BackendGPU)
	} else {
		engine.SetBackend(engine.BackendCPU)
	}

	field := neural.DefaultField()

	if *headless {
		if err := renderHeadless(field, *scenePath, *output, *serveAddr,
			*frames, *displayW, *displayH, *record, *recordDir); err != nil {
			log.Println("headless render error:", err)
			os.Exit(1)
		}
		return
	}

	opts := ui.Options{
		ScenePath: *scenePath,
		ServeAddr: *serveAddr,
		OutDir:    *recordDir,
	}
	if err := ui.Run(field, opts); err != nil {
		log.Println("ui error:", err)
		os.Exit(1)
	}
}

func renderHeadless(field engine.NeuralRenderer, scenePath, outPath, serveAddr string,
	frames, displayW, displayH int, record bool, recordDir string) error {
	sc, err := scene.Load(scenePath)
	if err != nil {
		return fmt.Errorf("load scene: %w", err)
	}

	var pass engine.SyntheticPass
	if engine.GetBackend() == engine.BackendGPU {
		pass = gpu.NewPass(field)
	}
	rend := engine.NewRenderer(sc, field, pass)
	rend.DisplayWidth = displayW
	rend.DisplayHeight = displayH
	rend.Recording = record
	rend.Recorder.Dir = recordDir

	var srv *stream.Server
	if serveAddr != "" {
		srv = stream.NewServer(serveAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.Printf("preview server: %v", err)
			}
		}()
	}

	var fb *engine.FrameBuffer
	for i := 0; i < frames; i++ {
		fb, err = rend.RenderFrame()
		if err != nil {
			return fmt.Errorf("render frame %d: %w", i, err)
		}
		if srv != nil {
			srv.Broadcast(fb)
		}
	}

	if err := engine.SavePNG(outPath, engine.ToImage(fb)); err != nil {
		return fmt.Errorf("save png: %w", err)
	}
	log.Printf("wrote %s after %d frame(s), %d sample(s)", outPath, frames, rend.Samples())
	return nil
}
