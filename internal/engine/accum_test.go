package engine

import "testing"

func TestAccumulationStartsClean(t *testing.T) {
	var a AccumulationController
	if a.BeginFrame() {
		t.Fatal("fresh controller must not request a reset")
	}
	if a.Samples() != 0 {
		t.Fatalf("fresh controller samples = %d", a.Samples())
	}
}

func TestAccumulationCountsWithoutInvalidation(t *testing.T) {
	var a AccumulationController
	for frame := 1; frame <= 5; frame++ {
		if a.BeginFrame() {
			t.Fatalf("unexpected reset at frame %d", frame)
		}
		a.AddSample()
		if a.Samples() != frame {
			t.Fatalf("samples = %d at frame %d", a.Samples(), frame)
		}
	}
}

func TestInvalidateResetsExactlyOnce(t *testing.T) {
	var a AccumulationController
	a.AddSample()
	a.AddSample()

	a.Invalidate()
	a.Invalidate() // coalesces with the pending reset

	if !a.BeginFrame() {
		t.Fatal("pending reset not consumed")
	}
	if a.Samples() != 0 {
		t.Fatalf("reset must zero the counter, got %d", a.Samples())
	}
	a.AddSample()

	if a.BeginFrame() {
		t.Fatal("reset must fire exactly once")
	}
	if a.Samples() != 1 {
		t.Fatalf("samples after reset = %d, want 1", a.Samples())
	}
}
