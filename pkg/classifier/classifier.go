// Package classifier implements landmark classification on top of an
// injected inference engine.
package classifier

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/landmark-classifier/pkg/engine"
	"github.com/menta2k/landmark-classifier/pkg/orientation"
	"github.com/menta2k/landmark-classifier/pkg/tensor"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

// Default configuration values
const (
	DefaultModelAsset     = engine.DefaultModelAsset
	DefaultNumThreads     = 2
	DefaultMaxResults     = 3
	DefaultScoreThreshold = float32(0.4)
)

// Classifier labels an image captured at a given device rotation
type Classifier interface {
	Classify(ctx context.Context, img image.Image, rotation types.Rotation) ([]types.Classification, error)
}

// Config holds the options used to build the inference handle
type Config struct {
	ModelAsset     string
	NumThreads     int
	MaxResults     int
	ScoreThreshold float32
}

// Option customizes a ModelClassifier
type Option func(*ModelClassifier)

// WithScoreThreshold sets the minimum confidence returned by the engine
func WithScoreThreshold(threshold float32) Option {
	return func(c *ModelClassifier) { c.config.ScoreThreshold = threshold }
}

// WithMaxResults sets the maximum number of results per prediction group
func WithMaxResults(n int) Option {
	return func(c *ModelClassifier) { c.config.MaxResults = n }
}

// WithNumThreads sets the engine's internal worker count
func WithNumThreads(n int) Option {
	return func(c *ModelClassifier) { c.config.NumThreads = n }
}

// WithModelAsset sets the name of the model asset the handle is bound to
func WithModelAsset(name string) Option {
	return func(c *ModelClassifier) { c.config.ModelAsset = name }
}

// WithLogger sets the logger used for lifecycle and per-call debug output
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *ModelClassifier) {
		if log != nil {
			c.log = log
		}
	}
}

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateClosed
)

// ModelClassifier classifies images with a lazily built engine handle.
// It is safe for concurrent use; model runs are serialized.
type ModelClassifier struct {
	engine engine.Engine
	config Config
	log    logrus.FieldLogger

	mu     sync.Mutex
	state  state
	handle engine.Handle
}

// New creates a classifier over eng. The model is not loaded until the first
// call to Classify.
func New(eng engine.Engine, opts ...Option) *ModelClassifier {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &ModelClassifier{
		engine: eng,
		config: Config{
			ModelAsset:     DefaultModelAsset,
			NumThreads:     DefaultNumThreads,
			MaxResults:     DefaultMaxResults,
			ScoreThreshold: DefaultScoreThreshold,
		},
		log: discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the handle configuration
func (c *ModelClassifier) Config() Config {
	return c.config
}

// Ready reports whether the inference handle has been built
func (c *ModelClassifier) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateReady
}

// Classify runs the model on img and returns labels in engine order with
// duplicate names removed. An engine that returns nothing yields an empty slice.
func (c *ModelClassifier) Classify(ctx context.Context, img image.Image, rotation types.Rotation) ([]types.Classification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	handle, err := c.ensureHandle()
	if err != nil {
		return nil, err
	}

	input, err := tensor.FromImage(img)
	if err != nil {
		return nil, err
	}

	o := orientation.FromRotation(rotation)

	start := time.Now()
	groups, err := handle.Run(ctx, input, o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	results := flatten(groups)
	c.log.WithFields(logrus.Fields{
		"rotation":    int(rotation),
		"orientation": o.String(),
		"groups":      len(groups),
		"results":     len(results),
		"elapsed":     time.Since(start),
	}).Debug("classified image")

	return results, nil
}

// ensureHandle builds the handle on first use. Callers must hold mu.
func (c *ModelClassifier) ensureHandle() (engine.Handle, error) {
	switch c.state {
	case stateReady:
		return c.handle, nil
	case stateClosed:
		return nil, ErrClosed
	}

	opts := engine.Options{
		ModelAsset:     c.config.ModelAsset,
		NumThreads:     c.config.NumThreads,
		MaxResults:     c.config.MaxResults,
		ScoreThreshold: c.config.ScoreThreshold,
	}

	start := time.Now()
	handle, err := c.engine.Build(opts)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"model": opts.ModelAsset,
			"error": err.Error(),
		}).Error("failed to load model")
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, opts.ModelAsset, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %s: engine returned no handle", ErrModelLoad, opts.ModelAsset)
	}

	c.handle = handle
	c.state = stateReady
	c.log.WithFields(logrus.Fields{
		"model":       opts.ModelAsset,
		"threads":     opts.NumThreads,
		"max_results": opts.MaxResults,
		"threshold":   opts.ScoreThreshold,
		"elapsed":     time.Since(start),
	}).Info("model loaded")

	return handle, nil
}

// Close releases the inference handle. Further calls to Classify fail with
// ErrClosed. Close is idempotent.
func (c *ModelClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	handle := c.handle
	c.state = stateClosed
	c.handle = nil

	if prev != stateReady || handle == nil {
		return nil
	}
	if err := handle.Close(); err != nil {
		return fmt.Errorf("failed to release model handle: %w", err)
	}
	c.log.WithField("model", c.config.ModelAsset).Debug("model released")
	return nil
}
