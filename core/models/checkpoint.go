package models

// CheckpointModelTag is the model tag written into every checkpoint metadata file
const CheckpointModelTag = "pytorch_runner_stub"

// CheckpointTimeLayout is the UTC layout of CheckpointMetadata.CreatedAt
const CheckpointTimeLayout = "2006-01-02T15:04:05Z"

// CheckpointMetadata summarizes a completed run, independent of any model weights
type CheckpointMetadata struct {
	ID           string   `json:"id"`
	Model        string   `json:"model"`
	CreatedAt    string   `json:"created_at"`
	TrainingStep int      `json:"training_step"`
	Devices      []string `json:"devices"`
	Notes        *string  `json:"notes"`
}
