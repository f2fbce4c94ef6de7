package executor

import "strings"

// DefaultDevice is the non-accelerated execution device
const DefaultDevice = "cpu"

// DeviceScope is the execution device handed to a backend at construction.
// Visible restricts which accelerator ordinals the backend may use; it is
// empty for host execution.
type DeviceScope struct {
	Device  string
	Visible string
}

// Accelerated reports whether the scope targets an accelerator
func (s DeviceScope) Accelerated() bool {
	return s.Device != DefaultDevice
}

// BindDevice maps the requested devices onto an execution scope. Only the first
// entry is considered; an accelerator request that cannot be honored falls back
// to the default device without error.
func BindDevice(devices []string, accelerators int) DeviceScope {
	if len(devices) == 0 || accelerators <= 0 {
		return DeviceScope{Device: DefaultDevice}
	}
	preferred := devices[0]
	if !strings.HasPrefix(preferred, "cuda") {
		return DeviceScope{Device: DefaultDevice}
	}
	ordinal := "0"
	if parts := strings.Split(preferred, ":"); len(parts) > 1 && parts[1] != "" {
		ordinal = parts[1]
	}
	// With visibility narrowed to one ordinal the backend addresses it as device 0.
	return DeviceScope{Device: "cuda:0", Visible: ordinal}
}
