package compute

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
)

// gomlx backend configurations
const (
	BackendCPU  = "go"
	BackendCUDA = "xla:cuda"
)

// Device is the placement requested for a model
type Device struct {
	Accelerated bool
	// Visible is the accelerator ordinal the run was bound to
	Visible string
}

// BackendConfig returns the gomlx backend configuration for d
func (d Device) BackendConfig() string {
	if d.Accelerated {
		return BackendCUDA
	}
	return BackendCPU
}

// Available reports whether a CPU backend can be created in this process.
// The backend is released before returning.
func Available() error {
	b, err := NewBackend(Device{})
	if err != nil {
		return err
	}
	b.Finalize()
	return nil
}

// NewBackend creates the gomlx backend for d. Nothing process-wide is changed.
// TODO: pin d.Visible inside the XLA client through the PJRT visible_devices create option.
func NewBackend(d Device) (backend backends.Backend, err error) {
	config := d.BackendConfig()
	if panicErr := exceptions.TryCatch[error](func() {
		backend, err = backends.NewWithConfig(config)
	}); panicErr != nil {
		err = panicErr
	}
	if err != nil {
		return nil, fmt.Errorf("create %q backend: %w", config, err)
	}
	return backend, nil
}
