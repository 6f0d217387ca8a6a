// Package engine defines the inference capability the classifier is built on.
//
// An Engine turns fixed Options into a Handle once; a Handle then runs the
// bound model for each image. Handles apply ScoreThreshold and MaxResults
// themselves so callers only post-process labels.
package engine

import (
	"context"
	"sort"

	"github.com/menta2k/landmark-classifier/pkg/tensor"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

// DefaultModelAsset names the landmark model bundled with the classifier
const DefaultModelAsset = "landmarks"

// Options are fixed when a handle is built
type Options struct {
	ModelAsset     string
	NumThreads     int
	MaxResults     int
	ScoreThreshold float32
}

// Category is one label/score pair inside a prediction group
type Category struct {
	Index       int
	Label       string
	DisplayName string
	Score       float32
}

// Name returns the display name, or the raw label if none is set
func (c Category) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Label
}

// Classifications is the prediction group produced by one model head
type Classifications struct {
	HeadIndex  int
	HeadName   string
	Categories []Category
}

// Engine builds inference handles
type Engine interface {
	Build(opts Options) (Handle, error)
}

// Handle is a loaded, configured model
type Handle interface {
	Run(ctx context.Context, img *tensor.Image, o types.Orientation) ([]Classifications, error)
	Close() error
}

// TopK orders scores descending, drops those below threshold and keeps at most
// maxResults (maxResults <= 0 keeps all). Ties keep their label order.
func TopK(scores []float32, labels []string, maxResults int, threshold float32) []Category {
	out := make([]Category, 0, len(scores))
	for i, s := range scores {
		if s < threshold {
			continue
		}
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		if label == "" {
			continue
		}
		out = append(out, Category{Index: i, Label: label, Score: s})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}
