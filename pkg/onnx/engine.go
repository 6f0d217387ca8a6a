// Package onnx runs classification models with ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/menta2k/landmark-classifier/pkg/engine"
	"github.com/menta2k/landmark-classifier/pkg/orientation"
	"github.com/menta2k/landmark-classifier/pkg/tensor"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

// Config locates model assets and the ONNX Runtime shared library
type Config struct {
	AssetDir          string
	SharedLibraryPath string
	ModelExt          string
}

// DefaultConfig returns a config reading assets from ./models
func DefaultConfig() Config {
	return Config{
		AssetDir: "models",
		ModelExt: ".onnx",
	}
}

// Engine builds ONNX Runtime sessions for named model assets
type Engine struct {
	config Config
}

// NewEngine creates an ONNX engine
func NewEngine(config Config) *Engine {
	if config.ModelExt == "" {
		config.ModelExt = ".onnx"
	}
	return &Engine{config: config}
}

var envMu sync.Mutex

func initializeEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// Shutdown tears down the process-wide ONNX Runtime environment. Call it once
// after every handle has been closed.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// AssetPaths returns the model and metadata paths for a model asset name
func (e *Engine) AssetPaths(name string) (model, metadata string) {
	model = name
	if filepath.Ext(model) == "" {
		model += e.config.ModelExt
	}
	if !filepath.IsAbs(model) {
		model = filepath.Join(e.config.AssetDir, model)
	}
	metadata = strings.TrimSuffix(model, filepath.Ext(model)) + ".json"
	return model, metadata
}

// Build loads the model asset and creates a session bound to opts
func (e *Engine) Build(opts engine.Options) (engine.Handle, error) {
	if opts.ModelAsset == "" {
		return nil, errors.New("empty model asset name")
	}
	modelPath, metaPath := e.AssetPaths(opts.ModelAsset)

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model asset: %w", err)
	}
	meta, err := LoadMetadata(metaPath)
	if err != nil {
		return nil, err
	}

	if err := initializeEnvironment(e.config.SharedLibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model io: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("unexpected model io (in:%d out:%d)", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if len(in.Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input, got %dD", len(in.Dimensions))
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessionOpts.Destroy()

	if opts.NumThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{in.Name}, []string{out.Name}, sessionOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	inH, inW := inputSize(in.Dimensions, meta.InputLayout, meta.ImageSize)
	return &handle{
		session: session,
		meta:    meta,
		opts:    opts,
		inH:     inH,
		inW:     inW,
	}, nil
}

// inputSize reads H and W from the model's input dimensions, falling back to
// size for dynamic axes.
func inputSize(dims ort.Shape, layout string, size int) (int, int) {
	hIdx, wIdx := 2, 3
	if layout == LayoutNHWC {
		hIdx, wIdx = 1, 2
	}
	h, w := size, size
	if len(dims) == 4 {
		if dims[hIdx] > 0 {
			h = int(dims[hIdx])
		}
		if dims[wIdx] > 0 {
			w = int(dims[wIdx])
		}
	}
	return h, w
}

type handle struct {
	session  *ort.DynamicAdvancedSession
	meta     *Metadata
	opts     engine.Options
	inH, inW int
}

// Run orients, resizes and normalizes the image, then returns a single
// prediction group thresholded and capped per the handle options.
func (h *handle) Run(ctx context.Context, img *tensor.Image, o types.Orientation) ([]engine.Classifications, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.session == nil {
		return nil, errors.New("session closed")
	}

	upright := orientation.Apply(img.ToNRGBA(), o)
	data := preprocess(upright, h.inW, h.inH, h.meta.InputLayout, h.meta.Mean, h.meta.Std)

	input, err := ort.NewTensor(ort.NewShape(inputShape(h.inW, h.inH, h.meta.InputLayout)...), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := h.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	scores := append([]float32(nil), out.GetData()...)
	if h.meta.ApplySoftmax {
		softmax(scores)
	}

	return []engine.Classifications{{
		HeadIndex:  0,
		HeadName:   h.opts.ModelAsset,
		Categories: engine.TopK(scores, h.meta.Classes, h.opts.MaxResults, h.opts.ScoreThreshold),
	}}, nil
}

func (h *handle) Close() error {
	if h.session == nil {
		return nil
	}
	err := h.session.Destroy()
	h.session = nil
	return err
}
