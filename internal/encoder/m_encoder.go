package encoder

import (
	"context"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
)

// MEncoder projects a model's 5-dim capability vector into the same
// 128-dim Z-space the Q-Encoder produces.
type MEncoder struct {
	proj *mlp
}

// NewMEncoder loads the 5->64->128 projection from checkpointPath, or
// random weights if unavailable.
func NewMEncoder(checkpointPath string, seed int64) *MEncoder {
	return &MEncoder{proj: loadOrRandomMLP(checkpointPath, capability.Skills, 64, LatentDim, seed)}
}

// NewMEncoderWithLoader is like NewMEncoder but tries loader (e.g. an S3
// checkpoint store) before falling back to checkpointPath.
func NewMEncoderWithLoader(ctx context.Context, loader CheckpointLoader, checkpointName, checkpointPath string, seed int64) *MEncoder {
	return &MEncoder{proj: loadFromLoaderOrPath(ctx, loader, checkpointName, checkpointPath, capability.Skills, 64, LatentDim, seed)}
}

// Encode projects probe into z_M.
func (e *MEncoder) Encode(probe [capability.Skills]float64) []float32 {
	x := make([]float32, len(probe))
	for i, v := range probe {
		x[i] = float32(v)
	}
	return e.proj.forward(x)
}
