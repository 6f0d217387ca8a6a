package classifier

import (
	"errors"

	"github.com/menta2k/landmark-classifier/pkg/tensor"
)

var (
	// ErrModelLoad is returned when the inference handle cannot be built
	ErrModelLoad = errors.New("model load failure")
	// ErrInvalidImage is returned when the input cannot be converted to a tensor
	ErrInvalidImage = tensor.ErrInvalidImage
	// ErrInference wraps failures reported by the engine while running the model
	ErrInference = errors.New("inference failed")
	// ErrClosed is returned by Classify after Close
	ErrClosed = errors.New("classifier closed")
)
