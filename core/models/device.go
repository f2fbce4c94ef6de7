package models

// DeviceKind is the family of a compute device
type DeviceKind string

const (
	DeviceKindCPU  DeviceKind = "cpu"
	DeviceKindCUDA DeviceKind = "cuda"
	DeviceKindROCm DeviceKind = "rocm"
)

// Accelerator reports whether the kind is a non-default compute device
func (k DeviceKind) Accelerator() bool {
	return k == DeviceKindCUDA || k == DeviceKindROCm
}

// DeviceInfo describes a device discovered on the host
type DeviceInfo struct {
	ID               string     `json:"id"` // e.g. "cuda:0"
	Ordinal          int        `json:"ordinal"`
	Name             string     `json:"name"`
	Kind             DeviceKind `json:"kind"`
	MemoryTotalBytes uint64     `json:"memory_total_bytes"`
}
