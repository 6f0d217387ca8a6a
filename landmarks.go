// Package landmarks recognizes well-known landmarks in photographs.
//
// A Classifier wraps an inference engine behind a lazily built, mutex guarded
// handle. The handle is configured once with the model asset name, thread
// count, result cap and score threshold, and every call supplies the device
// rotation so the engine can read the frame upright.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		landmarks "github.com/menta2k/landmark-classifier"
//		"github.com/menta2k/landmark-classifier/pkg/onnx"
//		"github.com/menta2k/landmark-classifier/pkg/types"
//	)
//
//	func main() {
//		defer onnx.Shutdown()
//
//		lc := landmarks.New(onnx.NewEngine(onnx.DefaultConfig()))
//		defer lc.Close()
//
//		result, err := lc.ClassifyFile(context.Background(), "paris.jpg", types.RotationUpright)
//		if err != nil {
//			log.Fatal(err)
//		}
//		for _, c := range result.Classifications {
//			fmt.Printf("%s %.2f\n", c.Name, c.Score)
//		}
//	}
//
// The package consists of these components:
//
//  1. Classifier (pkg/classifier): lazy handle, orientation lookup, flatten and dedupe
//  2. Engines (pkg/onnx, pkg/vlm): ONNX Runtime models and vision language models
//  3. Clients (pkg/ollama, pkg/llamacpp): transports for the vision language engine
//  4. Analyzer and processing (pkg/analyzer, pkg/processing): image loading and encoding
package landmarks

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/menta2k/landmark-classifier/pkg/analyzer"
	"github.com/menta2k/landmark-classifier/pkg/classifier"
	"github.com/menta2k/landmark-classifier/pkg/engine"
	"github.com/menta2k/landmark-classifier/pkg/orientation"
	"github.com/menta2k/landmark-classifier/pkg/processing"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

// Version of the landmark classifier library
const Version = "1.0.0"

// Classifier provides a high-level interface for landmark classification
type Classifier struct {
	analyzer   *analyzer.ImageAnalyzer
	processor  *processing.Processor
	classifier *classifier.ModelClassifier
}

// New creates a Classifier over eng. The model is loaded on first use.
func New(eng engine.Engine, opts ...classifier.Option) *Classifier {
	return &Classifier{
		analyzer:   analyzer.New(),
		processor:  processing.NewProcessor(),
		classifier: classifier.New(eng, opts...),
	}
}

// Result holds the classification of one image file
type Result struct {
	Path            string                 `json:"path"`
	Info            analyzer.ImageInfo     `json:"info"`
	Rotation        int                    `json:"rotation"`
	Orientation     string                 `json:"orientation"`
	Classifications []types.Classification `json:"classifications"`
}

// SetMaxDownloadBytes caps images fetched by URL
func (lc *Classifier) SetMaxDownloadBytes(n int64) {
	lc.processor.SetMaxDownloadBytes(n)
}

// LoadImage loads an image from a local path or an http(s) URL
func (lc *Classifier) LoadImage(ctx context.Context, pathOrURL string) (image.Image, error) {
	return lc.processor.LoadImageSmart(ctx, pathOrURL)
}

// LoadImageFromReader decodes a JPEG, PNG or WebP image from reader
func (lc *Classifier) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	return lc.analyzer.LoadImageFromReader(reader)
}

// GetImageInfo returns basic information about an image
func (lc *Classifier) GetImageInfo(img image.Image) analyzer.ImageInfo {
	return lc.analyzer.GetImageInfo(img)
}

// Classify labels img captured at the given device rotation
func (lc *Classifier) Classify(ctx context.Context, img image.Image, rotation types.Rotation) ([]types.Classification, error) {
	return lc.classifier.Classify(ctx, img, rotation)
}

// ClassifyImage validates and classifies an already loaded image. name is
// reported back as the result path.
func (lc *Classifier) ClassifyImage(ctx context.Context, name string, img image.Image, rotation types.Rotation) (Result, error) {
	if err := lc.analyzer.ValidateImage(img); err != nil {
		return Result{}, fmt.Errorf("%w: %w", classifier.ErrInvalidImage, err)
	}

	classifications, err := lc.Classify(ctx, img, rotation)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Path:            name,
		Info:            lc.GetImageInfo(img),
		Rotation:        int(rotation),
		Orientation:     orientation.FromRotation(rotation).String(),
		Classifications: classifications,
	}, nil
}

// ClassifyFile loads and classifies a single image. Use
// types.RotationUpright for files stored the right way up.
func (lc *Classifier) ClassifyFile(ctx context.Context, pathOrURL string, rotation types.Rotation) (Result, error) {
	img, err := lc.LoadImage(ctx, pathOrURL)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load image: %w", err)
	}
	return lc.ClassifyImage(ctx, pathOrURL, img, rotation)
}

// SaveOriented writes img as the engines see it for rotation. The format
// follows the extension of path.
func (lc *Classifier) SaveOriented(img image.Image, rotation types.Rotation, path string) error {
	upright := orientation.Apply(img, orientation.FromRotation(rotation))
	return lc.processor.SaveImage(upright, path, "", 90, false)
}

// Model returns the underlying classifier, for serving over HTTP
func (lc *Classifier) Model() *classifier.ModelClassifier {
	return lc.classifier
}

// Ready reports whether the model has been loaded
func (lc *Classifier) Ready() bool {
	return lc.classifier.Ready()
}

// Close releases the model
func (lc *Classifier) Close() error {
	return lc.classifier.Close()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
