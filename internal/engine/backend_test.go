package engine

import "testing"

func TestBackendSelection(t *testing.T) {
	defer SetBackend(BackendCPU)

	SetBackend(BackendGPU)
	if GetBackend() != BackendGPU {
		t.Fatalf("GetBackend() = %v after selecting GPU", GetBackend())
	}

	SetBackend(BackendCPU)
	if GetBackend() != BackendCPU {
		t.Fatalf("GetBackend() = %v after selecting CPU", GetBackend())
	}

	SetBackend(Backend(42))
	if GetBackend() != BackendCPU {
		t.Fatalf("unknown backend must select the CPU, got %v", GetBackend())
	}
}

func TestBackendString(t *testing.T) {
	if BackendCPU.String() != "cpu" || BackendGPU.String() != "gpu" {
		t.Fatalf("String() = %q, %q", BackendCPU.String(), BackendGPU.String())
	}
}
