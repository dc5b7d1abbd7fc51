package engine

// AccumulationController tracks progressive-accumulation state. It is a
// two-state machine: accumulating, or reset-pending after any upstream
// change. The sample counter only ever increases while accumulating and is
// set to exactly zero each time a pending reset is consumed.
type AccumulationController struct {
	samples      int
	resetPending bool
}

// Invalidate moves the controller to reset-pending. Called when staging
// reports a change, the camera moved, or a quality parameter changed.
func (a *AccumulationController) Invalidate() { a.resetPending = true }

// BeginFrame consumes a pending reset at the start of a render pass. It
// returns true when the progressive buffer must be cleared; the counter is
// zeroed at that point and the controller returns to accumulating.
func (a *AccumulationController) BeginFrame() bool {
	if !a.resetPending {
		return false
	}
	a.resetPending = false
	a.samples = 0
	return true
}

// AddSample records one accumulated sample per pixel.
func (a *AccumulationController) AddSample() { a.samples++ }

// Samples returns the number of accumulated samples.
func (a *AccumulationController) Samples() int { return a.samples }
