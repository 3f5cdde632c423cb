// Package encoder implements the Q-Encoder and M-Encoder projections: two
// small MLPs that map a query embedding and a model's capability vector
// into the same 128-dim Z-space so the Router can score them by dot
// product.
package encoder

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/rs/zerolog/log"
)

// CheckpointLoader is an optional remote source for encoder checkpoints,
// tried before the local filesystem path. The S3-backed implementation
// lives in internal/persistence/databases.
type CheckpointLoader interface {
	Load(ctx context.Context, name string) (io.ReadCloser, error)
}

// LatentDim is the shared Z-space dimensionality both encoders project into.
const LatentDim = 128

// mlp is a two-layer perceptron: in -> hidden (ReLU) -> out. Weights are
// row-major: weights1[hidden][in], weights2[out][hidden].
type mlp struct {
	weights1 [][]float32
	bias1    []float32
	weights2 [][]float32
	bias2    []float32
}

// checkpoint is the gob-serialized form of an mlp, used for both the
// Q-Encoder (384->256->128) and M-Encoder (5->64->128) checkpoints.
type checkpoint struct {
	Weights1 [][]float32
	Bias1    []float32
	Weights2 [][]float32
	Bias2    []float32
}

func newRandomMLP(in, hidden, out int, seed int64) *mlp {
	r := rand.New(rand.NewSource(seed))
	scale := func(fanIn int) float32 { return float32(1.0 / fanIn) }

	m := &mlp{
		weights1: randomMatrix(r, hidden, in, scale(in)),
		bias1:    make([]float32, hidden),
		weights2: randomMatrix(r, out, hidden, scale(hidden)),
		bias2:    make([]float32, out),
	}
	return m
}

func randomMatrix(r *rand.Rand, rows, cols int, scale float32) [][]float32 {
	m := make([][]float32, rows)
	for i := range m {
		row := make([]float32, cols)
		for j := range row {
			row[j] = (r.Float32()*2 - 1) * scale
		}
		m[i] = row
	}
	return m
}

// loadOrRandomMLP loads a gob-encoded checkpoint from path if it exists;
// otherwise it returns a randomly-initialized MLP of the given shape and
// logs a warning, per the startup contract: routing still functions, the
// scores merely are not meaningful until real weights are trained.
func loadOrRandomMLP(path string, in, hidden, out int, seed int64) *mlp {
	if path == "" {
		log.Warn().Str("component", "encoder").Msg("no checkpoint path configured, using random weights")
		return newRandomMLP(in, hidden, out, seed)
	}
	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("encoder checkpoint unavailable, using random weights")
		return newRandomMLP(in, hidden, out, seed)
	}
	defer f.Close()

	var cp checkpoint
	if err := gob.NewDecoder(f).Decode(&cp); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("encoder checkpoint unreadable, using random weights")
		return newRandomMLP(in, hidden, out, seed)
	}
	return &mlp{weights1: cp.Weights1, bias1: cp.Bias1, weights2: cp.Weights2, bias2: cp.Bias2}
}

// loadFromLoaderOrPath tries loader first (when non-nil), falling back to
// the local path and finally to random weights, in that order.
func loadFromLoaderOrPath(ctx context.Context, loader CheckpointLoader, name, path string, in, hidden, out int, seed int64) *mlp {
	if loader != nil {
		rc, err := loader.Load(ctx, name)
		if err != nil {
			log.Warn().Err(err).Str("checkpoint", name).Msg("remote checkpoint unavailable, falling back to local path")
		} else {
			defer rc.Close()
			var cp checkpoint
			if err := gob.NewDecoder(rc).Decode(&cp); err != nil {
				log.Warn().Err(err).Str("checkpoint", name).Msg("remote checkpoint unreadable, falling back to local path")
			} else {
				return &mlp{weights1: cp.Weights1, bias1: cp.Bias1, weights2: cp.Weights2, bias2: cp.Bias2}
			}
		}
	}
	return loadOrRandomMLP(path, in, hidden, out, seed)
}

// save writes m to path as a gob-encoded checkpoint, for offline training
// tooling to produce weights this package can later load.
func (m *mlp) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("encoder: create checkpoint: %w", err)
	}
	defer f.Close()
	cp := checkpoint{Weights1: m.weights1, Bias1: m.bias1, Weights2: m.weights2, Bias2: m.bias2}
	if err := gob.NewEncoder(f).Encode(cp); err != nil {
		return fmt.Errorf("encoder: encode checkpoint: %w", err)
	}
	return nil
}

// forward runs x through the two-layer MLP with a ReLU between layers.
func (m *mlp) forward(x []float32) []float32 {
	hidden := linear(m.weights1, m.bias1, x)
	relu(hidden)
	return linear(m.weights2, m.bias2, hidden)
}

func linear(weights [][]float32, bias []float32, x []float32) []float32 {
	out := make([]float32, len(weights))
	for i, row := range weights {
		var sum float32
		for j, w := range row {
			if j < len(x) {
				sum += w * x[j]
			}
		}
		if i < len(bias) {
			sum += bias[i]
		}
		out[i] = sum
	}
	return out
}

func relu(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// DotProduct computes the unnormalized similarity score the Router uses
// to rank models against a query: score(m) = <z_Q, z_M(m)>.
func DotProduct(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
