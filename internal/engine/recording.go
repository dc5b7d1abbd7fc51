package engine

import (
	"fmt"
	"image"
	"path/filepath"
)

// Recorder numbers and writes sequential frame captures. The counter is
// strictly increasing and bounded by the configured maximum frame count;
// once the bound is hit, recording stops.
type Recorder struct {
	Dir      string
	CountMax int

	count int
}

// AdvanceImageCount claims the next output slot. It returns false once the
// configured maximum has been reached; a false return means the frame must
// not be written.
func (r *Recorder) AdvanceImageCount() bool {
	if r.CountMax > 0 && r.count >= r.CountMax {
		return false
	}
	r.count++
	return true
}

// Count returns how many frames have been claimed so far.
func (r *Recorder) Count() int { return r.count }

// Path returns the file path for the most recently claimed frame.
func (r *Recorder) Path() string {
	return filepath.Join(r.Dir, fmt.Sprintf("output-%03d.png", r.count-1))
}

// WriteFrame claims a slot and encodes the image. Encoding failures are
// returned but non-fatal: the caller logs them and the frame continues
// without the recorded output.
func (r *Recorder) WriteFrame(img image.Image) (bool, error) {
	if !r.AdvanceImageCount() {
		return false, nil
	}
	if err := SavePNG(r.Path(), img); err != nil {
		return true, fmt.Errorf("record frame %d: %w", r.count-1, err)
	}
	return true, nil
}
