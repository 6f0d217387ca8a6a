package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	landmarks "github.com/menta2k/landmark-classifier"
	"github.com/menta2k/landmark-classifier/internal/config"
	"github.com/menta2k/landmark-classifier/pkg/classifier"
	"github.com/menta2k/landmark-classifier/pkg/client"
	"github.com/menta2k/landmark-classifier/pkg/engine"
	"github.com/menta2k/landmark-classifier/pkg/llamacpp"
	"github.com/menta2k/landmark-classifier/pkg/ollama"
	"github.com/menta2k/landmark-classifier/pkg/onnx"
	"github.com/menta2k/landmark-classifier/pkg/vlm"
)

// newVisionClient creates the transport for the configured VLM backend
func newVisionClient(c *config.Config) (client.VisionClient, error) {
	switch c.Engine.Backend {
	case config.BackendOllama:
		vc, err := ollama.NewClient(c.Engine.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return vc, nil
	case config.BackendLlamaCpp:
		vc, err := llamacpp.NewClient(c.Engine.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return vc, nil
	default:
		return nil, fmt.Errorf("backend %s has no vision client", c.Engine.Backend)
	}
}

func newVisionEngine(c *config.Config) (*vlm.Engine, error) {
	vc, err := newVisionClient(c)
	if err != nil {
		return nil, err
	}
	return vlm.NewEngine(vc, vlm.Config{
		Model:         c.Engine.Model,
		SendFormat:    c.Engine.SendFormat,
		SendSize:      c.Engine.SendSize,
		SendQuality:   c.Engine.SendQuality,
		VerifyTimeout: 30 * time.Second,
	}), nil
}

// newEngine returns the engine for the configured backend and a cleanup
// function to run once every classifier built on it is closed.
func newEngine(c *config.Config) (engine.Engine, func(), error) {
	switch c.Engine.Backend {
	case config.BackendONNX:
		eng := onnx.NewEngine(onnx.Config{
			AssetDir:          c.Classifier.AssetDir,
			SharedLibraryPath: c.Classifier.SharedLibraryPath,
		})
		return eng, func() {
			if err := onnx.Shutdown(); err != nil {
				log.WithError(err).Warn("failed to shut down ONNX Runtime")
			}
		}, nil
	case config.BackendOllama, config.BackendLlamaCpp:
		eng, err := newVisionEngine(c)
		if err != nil {
			return nil, nil, err
		}
		return eng, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend: %s (use onnx, ollama or llamacpp)", c.Engine.Backend)
	}
}

// newClassifier validates the config and builds a classifier over its backend
func newClassifier(c *config.Config) (*landmarks.Classifier, func(), error) {
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	eng, cleanup, err := newEngine(c)
	if err != nil {
		return nil, nil, err
	}

	lc := landmarks.New(eng,
		classifier.WithModelAsset(c.Classifier.ModelAsset),
		classifier.WithNumThreads(c.Classifier.NumThreads),
		classifier.WithMaxResults(c.Classifier.MaxResults),
		classifier.WithScoreThreshold(c.Classifier.ScoreThreshold),
		classifier.WithLogger(log),
	)

	return lc, func() {
		if err := lc.Close(); err != nil {
			log.WithError(err).Warn("failed to close classifier")
		}
		cleanup()
	}, nil
}

// addModelFlags registers the flags shared by commands that load a model
func addModelFlags(flags *pflag.FlagSet) {
	d := config.Default()
	flags.String("backend", d.Engine.Backend, "inference backend: onnx, ollama or llamacpp")
	flags.String("url", d.Engine.URL, "server URL for the ollama and llamacpp backends")
	flags.String("model", d.Engine.Model, "vision model name for the ollama and llamacpp backends")
	flags.String("model-asset", d.Classifier.ModelAsset, "model asset name")
	flags.String("models-dir", d.Classifier.AssetDir, "directory holding <asset>.onnx and <asset>.json")
	flags.String("ort-lib", d.Classifier.SharedLibraryPath, "path to the ONNX Runtime shared library")
	flags.Int("threads", d.Classifier.NumThreads, "inference threads")
	flags.Int("max-results", d.Classifier.MaxResults, "maximum labels per image")
	flags.Float32("threshold", d.Classifier.ScoreThreshold, "minimum score for a label")
}
