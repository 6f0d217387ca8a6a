package types

// Classification is a single labeled prediction returned to callers
type Classification struct {
	Name  string  `json:"name"`
	Score float32 `json:"score"`
}

// Label is a raw label/confidence pair as reported by a vision model backend
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Rotation is the device rotation in degrees reported with a captured frame
type Rotation int

const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 90
	Rotation180 Rotation = 180
	Rotation270 Rotation = 270
)

// RotationUpright is the rotation whose orientation is TopLeft, so the pixels
// reach the engine as stored. Use it for files that are already upright.
const RotationUpright = Rotation90

// RotationFromSurface converts Android Surface.ROTATION_* codes (0..3) to degrees.
// Unknown codes map to Rotation0.
func RotationFromSurface(code int) Rotation {
	switch code {
	case 1:
		return Rotation90
	case 2:
		return Rotation180
	case 3:
		return Rotation270
	default:
		return Rotation0
	}
}

// Orientation describes how a stored image must be read to appear upright.
// Values follow the EXIF orientation tag (1..8).
type Orientation int

const (
	TopLeft Orientation = iota + 1
	TopRight
	BottomRight
	BottomLeft
	LeftTop
	RightTop
	RightBottom
	LeftBottom
)

var orientationNames = map[Orientation]string{
	TopLeft:     "TOP_LEFT",
	TopRight:    "TOP_RIGHT",
	BottomRight: "BOTTOM_RIGHT",
	BottomLeft:  "BOTTOM_LEFT",
	LeftTop:     "LEFT_TOP",
	RightTop:    "RIGHT_TOP",
	RightBottom: "RIGHT_BOTTOM",
	LeftBottom:  "LEFT_BOTTOM",
}

func (o Orientation) String() string {
	if name, ok := orientationNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}
