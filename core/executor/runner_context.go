package executor

import (
	"strings"

	"training-orchestrator/core/spec"
)

// RunnerContext bundles a training configuration with invocation parameters.
// It is immutable: accessors return copies.
type RunnerContext struct {
	config  spec.TrainingConfig
	devices []string
	weights string
	profile string
	logFile string
}

// NewRunnerContext copies its inputs into a new context. weights may be empty.
func NewRunnerContext(cfg *spec.TrainingConfig, devices []string, weights, profile, logFile string) RunnerContext {
	rc := RunnerContext{
		config:  *cfg,
		devices: append([]string{}, devices...),
		weights: weights,
		profile: profile,
		logFile: logFile,
	}
	if cfg.Notes != nil {
		notes := *cfg.Notes
		rc.config.Notes = &notes
	}
	return rc
}

// Config returns a copy of the training configuration
func (rc RunnerContext) Config() *spec.TrainingConfig {
	cfg := rc.config
	return &cfg
}

// Devices returns the requested device identifiers in order
func (rc RunnerContext) Devices() []string {
	return append([]string{}, rc.devices...)
}

// Weights returns the pretrained weights path, if one was given.
// The training loop does not read it.
func (rc RunnerContext) Weights() (string, bool) {
	return rc.weights, rc.weights != ""
}

// Profile returns the free-form profile tag
func (rc RunnerContext) Profile() string {
	return rc.profile
}

// LogFile returns the event log destination
func (rc RunnerContext) LogFile() string {
	return rc.logFile
}

// ParseDevices splits a comma-separated device list. Empty tokens are dropped,
// so "" yields an empty list.
func ParseDevices(s string) []string {
	devices := []string{}
	for _, token := range strings.Split(s, ",") {
		if token = strings.TrimSpace(token); token != "" {
			devices = append(devices, token)
		}
	}
	return devices
}
