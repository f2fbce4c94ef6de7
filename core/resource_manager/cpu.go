package resource_manager

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"training-orchestrator/core/models"
)

// CPUDevice describes the host CPU as the default device "cpu:0"
func CPUDevice() models.DeviceInfo {
	return models.DeviceInfo{
		ID:   "cpu:0",
		Name: cpuName(),
		Kind: models.DeviceKindCPU,
	}
}

func cpuName() string {
	details := []string{fmt.Sprintf("%d threads", runtime.NumCPU())}
	if brand := strings.TrimSpace(cpuid.CPU.BrandName); brand != "" {
		details = append(details, brand)
	}
	if flags := SIMDFeatures(); len(flags) > 0 {
		details = append(details, strings.Join(flags, "/"))
	}
	return "CPU (" + strings.Join(details, ", ") + ")"
}

// SIMDFeatures lists the vector extensions the host CPU supports
func SIMDFeatures() []string {
	var flags []string
	if cpuid.CPU.Supports(cpuid.AVX2) {
		flags = append(flags, "avx2")
	}
	if cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ) {
		flags = append(flags, "avx512")
	}
	if cpuid.CPU.Supports(cpuid.ASIMD) {
		flags = append(flags, "neon")
	}
	return flags
}
