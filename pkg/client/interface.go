package client

import (
	"context"

	"github.com/menta2k/landmark-classifier/pkg/types"
)

// VisionClient talks to a vision language model backend
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	ClassifyImage(ctx context.Context, model, prompt, imgB64 string) ([]types.Label, error)
}
