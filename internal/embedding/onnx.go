//go:build cgo
// +build cgo

// Package embedding provides ONNX-based embedding (requires CGO and onnxruntime library).
package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/latticenotes/lattice/internal/errs"
	"github.com/latticenotes/lattice/pkg/utils"
)

// ONNXEmbedder uses ONNX Runtime to produce embeddings. It requires CGO and
// the onnxruntime shared library. Text longer than the model window is split
// into overlapping windows (overlap = half the window), each window embedded
// independently, and the results averaged and renormalized; a single-window
// input skips that path entirely.
type ONNXEmbedder struct {
	session      *ort.AdvancedSession
	dimensions   int
	maxTokens    int
	modelVersion string
	cache        *Cache
	tokenizer    Tokenizer
	// Pre-allocated tensors for Run(); input data is updated in place per call.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	// Serializes session access: the runtime's session state is not assumed
	// safe for unlimited concurrent callers.
	mu sync.Mutex
}

// NewONNXEmbedder creates an ONNX embedder. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(modelPath, modelVersion string, dimensions, maxTokens, cacheSize int) (*ONNXEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputIDs := make([]int64, maxTokens)
	attentionMask := make([]int64, maxTokens)
	tokenTypeIDs := make([]int64, maxTokens)

	inputIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	attentionMaskTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), attentionMask)
	if err != nil {
		inputIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	tokenTypeIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), tokenTypeIDs)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	outputData := make([]float32, dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), outputData)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	inputs := []ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor}
	outputs := []ort.ArbitraryTensor{outputTensor}
	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		inputs,
		outputs,
		nil,
	)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:             session,
		dimensions:          dimensions,
		maxTokens:           maxTokens,
		modelVersion:        modelVersion,
		cache:               NewCache(cacheSize),
		tokenizer:           &SimpleTokenizer{},
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		tokenTypeIDsTensor:  tokenTypeIDsTensor,
		outputTensor:        outputTensor,
	}, nil
}

// Embed returns the unit-normalized embedding for text, using the cache
// when available.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed, err := checkInput(text)
	if err != nil {
		return nil, err
	}
	if cached, ok := e.cache.Get(trimmed); ok {
		return cached, nil
	}

	inputIDs, attentionMask := e.tokenizer.Tokenize(trimmed)
	vec, err := embedWindowed(inputIDs, attentionMask, e.maxTokens, e.dimensions, e.embedWindow)
	if err != nil {
		return nil, err
	}
	e.cache.Set(trimmed, vec)
	return vec, nil
}

// embedWindow runs inference on one token window of length <= maxTokens.
func (e *ONNXEmbedder) embedWindow(inputIDs, attentionMask []int64) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.inputIDsTensor.GetData()
	mask := e.attentionMaskTensor.GetData()
	types := e.tokenTypeIDsTensor.GetData()
	for i := 0; i < e.maxTokens; i++ {
		if i < len(inputIDs) {
			ids[i] = inputIDs[i]
			mask[i] = attentionMask[i]
		} else {
			ids[i] = 0
			mask[i] = 0
		}
		types[i] = 0
	}

	if err := e.session.Run(); err != nil {
		return nil, errs.Embedding(fmt.Errorf("inference failed: %w", err))
	}

	outputData := e.outputTensor.GetData()
	vec := make([]float32, e.dimensions)
	copy(vec, outputData[:e.dimensions])
	utils.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelVersion returns the configured model version tag.
func (e *ONNXEmbedder) ModelVersion() string {
	return e.modelVersion
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputIDsTensor != nil {
		_ = e.inputIDsTensor.Destroy()
		e.inputIDsTensor = nil
	}
	if e.attentionMaskTensor != nil {
		_ = e.attentionMaskTensor.Destroy()
		e.attentionMaskTensor = nil
	}
	if e.tokenTypeIDsTensor != nil {
		_ = e.tokenTypeIDsTensor.Destroy()
		e.tokenTypeIDsTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
