//go:build cuda

package resource_manager

import (
	"fmt"

	"gorgonia.org/cu"

	"training-orchestrator/core/models"
)

// detectCUDA enumerates devices through the CUDA driver API
func detectCUDA() ([]models.DeviceInfo, error) {
	n, err := cu.NumDevices()
	if err != nil {
		return nil, err
	}
	devices := make([]models.DeviceInfo, 0, n)
	for i := 0; i < n; i++ {
		dev := cu.Device(i)
		name, err := dev.Name()
		if err != nil {
			return nil, fmt.Errorf("cuda device %d name: %w", i, err)
		}
		mem, err := dev.TotalMem()
		if err != nil {
			return nil, fmt.Errorf("cuda device %d memory: %w", i, err)
		}
		devices = append(devices, models.DeviceInfo{
			ID:               fmt.Sprintf("cuda:%d", i),
			Ordinal:          i,
			Name:             name,
			Kind:             models.DeviceKindCUDA,
			MemoryTotalBytes: uint64(mem),
		})
	}
	return devices, nil
}
