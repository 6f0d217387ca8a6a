package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Input tensor layouts
const (
	LayoutNCHW = "nchw"
	LayoutNHWC = "nhwc"
)

// Metadata describes the labels and preprocessing of a model asset. It is read
// from a JSON file stored next to the model.
type Metadata struct {
	Classes      []string  `json:"classes"`
	InputLayout  string    `json:"input_layout"`
	ImageSize    int       `json:"image_size"`
	Mean         []float32 `json:"mean"`
	Std          []float32 `json:"std"`
	ApplySoftmax bool      `json:"apply_softmax"`
}

// LoadMetadata reads and validates a metadata file
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	meta.applyDefaults()
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (m *Metadata) applyDefaults() {
	m.InputLayout = strings.ToLower(strings.TrimSpace(m.InputLayout))
	if m.InputLayout == "" {
		m.InputLayout = LayoutNCHW
	}
	if m.ImageSize <= 0 {
		m.ImageSize = 224
	}
	if len(m.Mean) == 0 {
		m.Mean = []float32{0, 0, 0}
	}
	if len(m.Std) == 0 {
		m.Std = []float32{1, 1, 1}
	}
}

// Validate checks that the metadata can drive preprocessing and labeling
func (m *Metadata) Validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("metadata.classes cannot be empty")
	}
	if m.InputLayout != LayoutNCHW && m.InputLayout != LayoutNHWC {
		return fmt.Errorf("metadata.input_layout must be %q or %q, got %q", LayoutNCHW, LayoutNHWC, m.InputLayout)
	}
	if len(m.Mean) != 3 || len(m.Std) != 3 {
		return fmt.Errorf("metadata.mean and metadata.std must have 3 values")
	}
	for _, s := range m.Std {
		if s == 0 {
			return fmt.Errorf("metadata.std values must be non-zero")
		}
	}
	return nil
}
