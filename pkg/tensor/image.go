// Package tensor converts caller images into the packed pixel layout handed to
// inference engines.
package tensor

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrInvalidImage is returned when an image cannot be converted to a tensor
var ErrInvalidImage = errors.New("invalid image")

// Channels is the number of color channels in a tensor image
const Channels = 3

// Image is an interleaved RGB uint8 buffer (HWC layout)
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// FromImage copies img into a tensor image without resizing or normalizing.
func FromImage(img image.Image) (*Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrInvalidImage, bounds)
	}

	// Clone normalizes any source model to NRGBA with a zero origin
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	pix := make([]uint8, Channels*w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			i := (y*w + x) * Channels
			pix[i+0] = row[x*4+0]
			pix[i+1] = row[x*4+1]
			pix[i+2] = row[x*4+2]
		}
	}

	return &Image{Width: w, Height: h, Pix: pix}, nil
}

// ToNRGBA rebuilds an opaque image from the tensor buffer
func (t *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, t.Width, t.Height))
	for i, j := 0, 0; i < len(t.Pix); i, j = i+Channels, j+4 {
		out.Pix[j+0] = t.Pix[i+0]
		out.Pix[j+1] = t.Pix[i+1]
		out.Pix[j+2] = t.Pix[i+2]
		out.Pix[j+3] = 255
	}
	return out
}

// Len returns the number of values in the buffer
func (t *Image) Len() int {
	return len(t.Pix)
}
