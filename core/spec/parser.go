package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied to optional configuration fields
const (
	DefaultSteps        = 100
	DefaultBatchSize    = 32
	DefaultLearningRate = 1e-3
	DefaultInputDim     = 128
	DefaultOutputDim    = 64
	DefaultHiddenDim    = 128
)

// TrainingConfig describes a training run. It is created once by LoadTrainingConfig
// and never modified afterwards.
type TrainingConfig struct {
	DatasetIndex  string
	CheckpointDir string
	Steps         int
	BatchSize     int
	LearningRate  float64
	InputDim      int
	OutputDim     int
	HiddenDim     int
	Notes         *string
}

// configFile is the on-disk document. Pointers distinguish absent fields from zero values.
type configFile struct {
	DatasetIndex  *string  `json:"dataset_index" yaml:"dataset_index"`
	CheckpointDir *string  `json:"checkpoint_dir" yaml:"checkpoint_dir"`
	Steps         *int     `json:"steps" yaml:"steps"`
	BatchSize     *int     `json:"batch_size" yaml:"batch_size"`
	LearningRate  *float64 `json:"learning_rate" yaml:"learning_rate"`
	InputDim      *int     `json:"input_dim" yaml:"input_dim"`
	OutputDim     *int     `json:"output_dim" yaml:"output_dim"`
	HiddenDim     *int     `json:"hidden_dim" yaml:"hidden_dim"`
	Notes         *string  `json:"notes" yaml:"notes"`
}

// LoadTrainingConfig reads a JSON (or .yaml/.yml) run configuration from path.
// Relative dataset_index and checkpoint_dir values resolve against the directory
// containing the file, not the working directory.
func LoadTrainingConfig(path string) (*TrainingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return ParseTrainingConfig(path, data)
}

// ParseTrainingConfig parses an already-read configuration document. path is used
// to pick the decoder and as the base for relative paths.
func ParseTrainingConfig(path string, data []byte) (*TrainingConfig, error) {
	var raw configFile
	if err := decode(path, data, &raw); err != nil {
		return nil, err
	}

	if raw.DatasetIndex == nil || *raw.DatasetIndex == "" {
		return nil, &ConfigError{Path: path, Field: "dataset_index", Err: errors.New("required field missing")}
	}
	if raw.CheckpointDir == nil || *raw.CheckpointDir == "" {
		return nil, &ConfigError{Path: path, Field: "checkpoint_dir", Err: errors.New("required field missing")}
	}

	datasetIndex, err := resolvePath(path, *raw.DatasetIndex)
	if err != nil {
		return nil, &ConfigError{Path: path, Field: "dataset_index", Err: err}
	}
	checkpointDir, err := resolvePath(path, *raw.CheckpointDir)
	if err != nil {
		return nil, &ConfigError{Path: path, Field: "checkpoint_dir", Err: err}
	}

	cfg := &TrainingConfig{
		DatasetIndex:  datasetIndex,
		CheckpointDir: checkpointDir,
		Steps:         intOr(raw.Steps, DefaultSteps),
		BatchSize:     intOr(raw.BatchSize, DefaultBatchSize),
		LearningRate:  DefaultLearningRate,
		InputDim:      intOr(raw.InputDim, DefaultInputDim),
		OutputDim:     intOr(raw.OutputDim, DefaultOutputDim),
		HiddenDim:     intOr(raw.HiddenDim, DefaultHiddenDim),
		Notes:         raw.Notes,
	}
	if raw.LearningRate != nil {
		cfg.LearningRate = *raw.LearningRate
	}

	if err := cfg.validate(); err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// validate enforces the numeric invariants: steps may be zero, everything else is positive
func (c *TrainingConfig) validate() error {
	if c.Steps < 0 {
		return &ConfigError{Field: "steps", Err: fmt.Errorf("must be >= 0, got %d", c.Steps)}
	}
	positive := []struct {
		field string
		value int
	}{
		{"batch_size", c.BatchSize},
		{"input_dim", c.InputDim},
		{"output_dim", c.OutputDim},
		{"hidden_dim", c.HiddenDim},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &ConfigError{Field: p.field, Err: fmt.Errorf("must be > 0, got %d", p.value)}
		}
	}
	if !(c.LearningRate > 0) {
		return &ConfigError{Field: "learning_rate", Err: fmt.Errorf("must be > 0, got %g", c.LearningRate)}
	}
	return nil
}

func decode(path string, data []byte, raw *configFile) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, raw); err != nil {
			return &ConfigError{Path: path, Err: fmt.Errorf("failed to parse YAML: %w", err)}
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &ConfigError{Path: path, Field: typeErr.Field, Err: fmt.Errorf("cannot parse %s as %s", typeErr.Value, typeErr.Type)}
		}
		return &ConfigError{Path: path, Err: fmt.Errorf("failed to parse JSON: %w", err)}
	}
	// The document must be a single JSON value.
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return &ConfigError{Path: path, Err: errors.New("failed to parse JSON: unexpected data after the configuration object")}
	}
	return nil
}

// resolvePath joins relative values onto the config file's directory
func resolvePath(configPath, value string) (string, error) {
	if filepath.IsAbs(value) {
		return value, nil
	}
	return filepath.Abs(filepath.Join(filepath.Dir(configPath), value))
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
