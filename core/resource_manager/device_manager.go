package resource_manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"training-orchestrator/core/models"
)

// DeviceManager owns the devices known on this host and the allocation policy
type DeviceManager struct {
	devices []models.DeviceInfo
}

// NewDeviceManager creates a manager from a fixed device list.
// An empty list falls back to the host CPU.
func NewDeviceManager(devices []models.DeviceInfo) *DeviceManager {
	if len(devices) == 0 {
		devices = []models.DeviceInfo{CPUDevice()}
	}
	return &DeviceManager{devices: append([]models.DeviceInfo(nil), devices...)}
}

// Autodetect probes the host for accelerators. Probe failures are logged and
// the manager falls back to the CPU device.
func Autodetect(ctx context.Context, logger *slog.Logger) *DeviceManager {
	if logger == nil {
		logger = slog.Default()
	}
	devices, err := detectCUDA()
	if err != nil {
		logger.Debug("cuda probe failed", "error", err)
	}
	if len(devices) == 0 {
		devices, err = detectNvidiaSMI(ctx)
		if err != nil {
			logger.Warn("nvidia-smi probe failed", "error", err)
		}
	}
	return NewDeviceManager(devices)
}

// Devices returns the known devices
func (m *DeviceManager) Devices() []models.DeviceInfo {
	return append([]models.DeviceInfo(nil), m.devices...)
}

// Accelerators returns the number of non-CPU devices
func (m *DeviceManager) Accelerators() int {
	n := 0
	for _, d := range m.devices {
		if d.Kind.Accelerator() {
			n++
		}
	}
	return n
}

// Allocate picks devices for a workload. count == 0 takes every candidate.
// When no candidate matches, the plan holds the CPU device.
func (m *DeviceManager) Allocate(pref Preference, count int) AllocationPlan {
	var candidates []models.DeviceInfo
	switch pref.mode {
	case modeCPUOnly:
		for _, d := range m.devices {
			if d.Kind == models.DeviceKindCPU {
				candidates = append(candidates, d)
			}
		}
	case modeExplicit:
		for _, d := range m.devices {
			for _, id := range pref.ids {
				if id == d.ID {
					candidates = append(candidates, d)
					break
				}
			}
		}
	default:
		for _, d := range m.devices {
			if d.Kind.Accelerator() {
				candidates = append(candidates, d)
			}
		}
		for _, d := range m.devices {
			if !d.Kind.Accelerator() {
				candidates = append(candidates, d)
			}
		}
	}

	if len(candidates) == 0 {
		candidates = []models.DeviceInfo{CPUDevice()}
	}
	if count > 0 && count < len(candidates) {
		candidates = candidates[:count]
	}
	return AllocationPlan{devices: candidates}
}

type preferenceMode int

const (
	modeGPUFirst preferenceMode = iota
	modeCPUOnly
	modeExplicit
)

// Preference is an allocation strategy
type Preference struct {
	mode preferenceMode
	ids  []string
}

// GPUFirst prioritizes accelerators and falls back to CPUs
func GPUFirst() Preference { return Preference{mode: modeGPUFirst} }

// CPUOnly restricts allocation to CPU devices
func CPUOnly() Preference { return Preference{mode: modeCPUOnly} }

// Explicit selects the known devices whose ids appear in ids
func Explicit(ids []string) Preference {
	return Preference{mode: modeExplicit, ids: append([]string(nil), ids...)}
}

// AllocationPlan is the result of an allocation request
type AllocationPlan struct {
	devices []models.DeviceInfo
}

// Devices returns the chosen devices
func (p AllocationPlan) Devices() []models.DeviceInfo {
	return append([]models.DeviceInfo(nil), p.devices...)
}

// IDs returns the chosen device ids in allocation order
func (p AllocationPlan) IDs() []string {
	ids := make([]string, len(p.devices))
	for i, d := range p.devices {
		ids[i] = d.ID
	}
	return ids
}

// CUDAVisible returns the comma-joined CUDA ordinals of the plan, or "" when it has none
func (p AllocationPlan) CUDAVisible() string {
	var ords []string
	for _, d := range p.devices {
		if ord, ok := strings.CutPrefix(d.ID, "cuda:"); ok {
			ords = append(ords, ord)
		}
	}
	return strings.Join(ords, ",")
}

func detectNvidiaSMI(ctx context.Context) ([]models.DeviceInfo, error) {
	cmd := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=index,name,memory.total",
		"--format=csv,noheader,nounits",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if errors.Is(err, exec.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute nvidia-smi: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseNvidiaSMI(string(out)), nil
}

// parseNvidiaSMI parses "index, name, memory MiB" CSV rows
func parseNvidiaSMI(out string) []models.DeviceInfo {
	var devices []models.DeviceInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		ordinal, _ := strconv.Atoi(parts[0])
		name := "NVIDIA GPU"
		if len(parts) > 1 && parts[1] != "" {
			name = parts[1]
		}
		var memMiB uint64
		if len(parts) > 2 {
			memMiB, _ = strconv.ParseUint(parts[2], 10, 64)
		}
		devices = append(devices, models.DeviceInfo{
			ID:               fmt.Sprintf("cuda:%d", ordinal),
			Ordinal:          ordinal,
			Name:             name,
			Kind:             models.DeviceKindCUDA,
			MemoryTotalBytes: memMiB * 1024 * 1024,
		})
	}
	return devices
}
