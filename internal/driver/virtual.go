package driver

import (
	"log/slog"
	"sync"
)

// VirtualBackend logs every applied state instead of driving hardware.
// Used for development machines and in tests.
type VirtualBackend struct {
	logger *slog.Logger

	mu      sync.Mutex
	last    State
	applies int
}

func NewVirtualBackend(logger *slog.Logger) *VirtualBackend {
	return &VirtualBackend{logger: logger}
}

func (v *VirtualBackend) Apply(st State) error {
	v.mu.Lock()
	v.last = st
	v.applies++
	v.mu.Unlock()
	v.logger.Debug("virtual lamp",
		"on", st.On,
		"level", st.Level,
		"hue", st.Hue,
		"saturation", st.Saturation,
		"kelvin", st.ColorTempK,
		"mode", st.Mode.String())
	return nil
}

func (v *VirtualBackend) Close() error { return nil }

// Last returns the most recently applied state.
func (v *VirtualBackend) Last() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

// Applies returns how many states were pushed to the backend.
func (v *VirtualBackend) Applies() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.applies
}
