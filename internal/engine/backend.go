package engine

// Backend selects where the synthetic pass executes. Set once at startup
// from the command line; callers that construct a pass consult GetBackend
// to decide between the in-process CPU pass and the gpu package's pass.
type Backend int

const (
	BackendCPU Backend = iota
	BackendGPU
)

func (b Backend) String() string {
	if b == BackendGPU {
		return "gpu"
	}
	return "cpu"
}

var currentBackend = BackendCPU

// SetBackend selects the active backend. Unknown values select the CPU.
func SetBackend(b Backend) {
	switch b {
	case BackendCPU, BackendGPU:
		currentBackend = b
	default:
		currentBackend = BackendCPU
	}
}

// GetBackend returns the active backend.
func GetBackend() Backend {
	return currentBackend
}
