// Package orientation maps camera rotation to image orientation corrections.
package orientation

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/landmark-classifier/pkg/types"
)

// FromRotation returns the orientation correction for a device rotation.
// Anything other than 90, 180 or 270 degrees is treated as the natural
// sensor orientation.
func FromRotation(rotation types.Rotation) types.Orientation {
	switch rotation {
	case types.Rotation270:
		return types.BottomRight
	case types.Rotation90:
		return types.TopLeft
	case types.Rotation180:
		return types.RightBottom
	default:
		return types.RightTop
	}
}

// Apply returns a copy of img transformed so that it appears upright for the
// given orientation. The source image is not modified.
func Apply(img image.Image, o types.Orientation) *image.NRGBA {
	switch o {
	case types.TopRight:
		return imaging.FlipH(img)
	case types.BottomRight:
		return imaging.Rotate180(img)
	case types.BottomLeft:
		return imaging.FlipV(img)
	case types.LeftTop:
		return imaging.Transpose(img)
	case types.RightTop:
		// imaging rotates counter-clockwise
		return imaging.Rotate270(img)
	case types.RightBottom:
		return imaging.Transverse(img)
	case types.LeftBottom:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}
