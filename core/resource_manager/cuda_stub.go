//go:build !cuda

package resource_manager

import "training-orchestrator/core/models"

// detectCUDA is unavailable without the cuda build tag; nvidia-smi is used instead
func detectCUDA() ([]models.DeviceInfo, error) {
	return nil, nil
}
