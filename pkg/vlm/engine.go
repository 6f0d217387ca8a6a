// Package vlm classifies images by prompting a vision language model.
package vlm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/menta2k/landmark-classifier/pkg/client"
	"github.com/menta2k/landmark-classifier/pkg/engine"
	"github.com/menta2k/landmark-classifier/pkg/orientation"
	"github.com/menta2k/landmark-classifier/pkg/processing"
	"github.com/menta2k/landmark-classifier/pkg/tensor"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// VerifyPrompt is the text-only request Build sends to check the backend answers
const VerifyPrompt = `Reply with OK.`

// defaultMaxLabels is requested from the model when MaxResults is unlimited
const defaultMaxLabels = 5

// DefaultPrompt asks for labels of the kind named by the model asset. The
// first verb receives the asset name, the second the maximum label count.
const DefaultPrompt = `You are an image classifier for %[1]s.

Return JSON only:
{
  "labels": [
    {"name": "string", "confidence": 0.0}
  ]
}

HARD RULES
- List at most %[2]d labels, most likely first.
- "name" is the common English name of the %[1]s, without extra words.
- "confidence" is a probability in [0,1].
- If nothing matches, return {"labels": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config selects the model and how images are sent to it
type Config struct {
	Model       string
	Prompt      string
	SendFormat  string
	SendSize    int
	SendQuality int
	// VerifyTimeout, when positive, makes Build send a text-only request to the
	// backend so an unreachable server surfaces as a load failure.
	VerifyTimeout time.Duration
}

// DefaultConfig returns settings matching the CLI defaults
func DefaultConfig() Config {
	return Config{
		Model:       "openbmb/minicpm-v4.5",
		Prompt:      DefaultPrompt,
		SendFormat:  "jpg",
		SendSize:    1536,
		SendQuality: 85,
	}
}

// Engine builds handles that classify through a VisionClient
type Engine struct {
	client    client.VisionClient
	config    Config
	processor *processing.Processor
}

// NewEngine creates a vision model engine
func NewEngine(c client.VisionClient, config Config) *Engine {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	return &Engine{
		client:    c,
		config:    config,
		processor: processing.NewProcessor(),
	}
}

// Build binds the model to opts. With VerifyTimeout set it also checks that
// the backend answers.
func (e *Engine) Build(opts engine.Options) (engine.Handle, error) {
	if e.client == nil {
		return nil, errors.New("no vision client configured")
	}
	if e.config.Model == "" {
		return nil, errors.New("empty vision model name")
	}

	if e.config.VerifyTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), e.config.VerifyTimeout)
		defer cancel()
		if _, err := e.client.SimpleQuery(ctx, e.config.Model, VerifyPrompt, ""); err != nil {
			return nil, fmt.Errorf("vision model %s unavailable: %w", e.config.Model, err)
		}
	}

	asset := opts.ModelAsset
	if asset == "" {
		asset = engine.DefaultModelAsset
	}
	maxLabels := opts.MaxResults
	if maxLabels <= 0 {
		maxLabels = defaultMaxLabels
	}

	prompt := e.config.Prompt
	if strings.Contains(prompt, "%[") {
		prompt = fmt.Sprintf(prompt, asset, maxLabels)
	}

	return &handle{
		engine: e,
		opts:   opts,
		prompt: prompt,
	}, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (e *Engine) TestVision(ctx context.Context, imageB64 string) (string, error) {
	return e.client.SimpleQuery(ctx, e.config.Model, SimpleTestPrompt, imageB64)
}

type handle struct {
	engine *Engine
	opts   engine.Options
	prompt string
	closed bool
}

func (h *handle) Run(ctx context.Context, img *tensor.Image, o types.Orientation) ([]engine.Classifications, error) {
	if h.closed {
		return nil, errors.New("handle closed")
	}
	cfg := h.engine.config

	upright := orientation.Apply(img.ToNRGBA(), o)
	imgB64, err := h.engine.processor.PrepareImageForModel(upright, cfg.SendFormat, cfg.SendSize, cfg.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	labels, err := h.engine.client.ClassifyImage(ctx, cfg.Model, h.prompt, imgB64)
	if err != nil {
		return nil, err
	}

	names, scores := normalizeLabels(labels)
	if len(names) == 0 {
		return nil, nil
	}

	return []engine.Classifications{{
		HeadIndex:  0,
		HeadName:   cfg.Model,
		Categories: engine.TopK(scores, names, h.opts.MaxResults, h.opts.ScoreThreshold),
	}}, nil
}

func (h *handle) Close() error {
	h.closed = true
	return nil
}

// normalizeLabels trims names, drops empty ones and clamps confidences to [0,1]
func normalizeLabels(labels []types.Label) ([]string, []float32) {
	names := make([]string, 0, len(labels))
	scores := make([]float32, 0, len(labels))
	for _, l := range labels {
		name := strings.Join(strings.Fields(l.Name), " ")
		if name == "" {
			continue
		}
		names = append(names, name)
		scores = append(scores, float32(clamp(l.Confidence, 0, 1)))
	}
	return names, scores
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
