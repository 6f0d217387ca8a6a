package onnx

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// preprocess resizes img to w x h and packs it into a normalized float32
// buffer in the given layout, scaling channels to [0,1] before mean/std.
func preprocess(img image.Image, w, h int, layout string, mean, std []float32) []float32 {
	resized := imaging.Resize(img, w, h, imaging.Linear)

	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*resized.Stride + x*4
			rgb := [3]float32{
				float32(resized.Pix[i+0]) / 255.0,
				float32(resized.Pix[i+1]) / 255.0,
				float32(resized.Pix[i+2]) / 255.0,
			}
			p := y*w + x
			for c := 0; c < 3; c++ {
				v := (rgb[c] - mean[c]) / std[c]
				if layout == LayoutNHWC {
					data[p*3+c] = v
				} else {
					data[c*plane+p] = v
				}
			}
		}
	}
	return data
}

// inputShape returns the batch-of-one tensor shape for the layout
func inputShape(w, h int, layout string) []int64 {
	if layout == LayoutNHWC {
		return []int64{1, int64(h), int64(w), 3}
	}
	return []int64{1, 3, int64(h), int64(w)}
}

// softmax converts logits to probabilities in place
func softmax(logits []float32) {
	if len(logits) == 0 {
		return
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		logits[i] = float32(e)
		sum += e
	}
	for i := range logits {
		logits[i] = float32(float64(logits[i]) / sum)
	}
}
