// Package embedding provides text embedding via ONNX with windowed chunking and caching.
package embedding

import (
	"context"
	"errors"
	"strings"

	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/pkg/utils"
)

// Embedder produces unit-normalized vector embeddings for text.
// Embed is deterministic for identical input. It is a potentially slow
// blocking call; callers schedule it on a bounded worker pool rather than
// invoking it on a latency-sensitive path.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelVersion() string
	Close() error
}

// checkInput trims text and rejects empty input as an embedding failure.
func checkInput(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errs.Embedding(errors.New("empty input"))
	}
	return trimmed, nil
}

// averageVectors returns the component-wise mean of vectors, renormalized
// to unit length. All vectors must share the same dimension.
func averageVectors(vectors [][]float32, dimensions int) []float32 {
	avg := make([]float32, dimensions)
	for _, vec := range vectors {
		for i, v := range vec {
			avg[i] += v
		}
	}
	n := float32(len(vectors))
	for i := range avg {
		avg[i] /= n
	}
	utils.NormalizeL2(avg)
	return avg
}

// embedWindowed embeds a tokenized input that may exceed the model window:
// the tokens are split into overlapping windows, each window embedded with
// embedFn, and the per-window vectors averaged and renormalized. An input
// that fits one window is passed through to embedFn directly.
func embedWindowed(inputIDs, attentionMask []int64, window, dimensions int, embedFn func(inputIDs, attentionMask []int64) ([]float32, error)) ([]float32, error) {
	bounds := windowBounds(len(inputIDs), window)
	if len(bounds) == 1 {
		return embedFn(inputIDs, attentionMask)
	}
	windows := make([][]float32, 0, len(bounds))
	for _, b := range bounds {
		vec, err := embedFn(inputIDs[b[0]:b[1]], attentionMask[b[0]:b[1]])
		if err != nil {
			return nil, err
		}
		windows = append(windows, vec)
	}
	return averageVectors(windows, dimensions), nil
}

// windowBounds returns the [start,end) token ranges for overlapping windows
// of size window over n tokens, with overlap of half a window so no
// boundary is lost at a split point. A single window covers n <= window.
func windowBounds(n, window int) [][2]int {
	if n <= window {
		return [][2]int{{0, n}}
	}
	step := window - window/2
	var bounds [][2]int
	for start := 0; start < n; start += step {
		end := start + window
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
		if end >= n {
			break
		}
	}
	return bounds
}
