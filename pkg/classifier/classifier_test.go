package classifier

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/landmark-classifier/pkg/engine"
	"github.com/menta2k/landmark-classifier/pkg/tensor"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

// stubEngine records builds and hands out a stubHandle
type stubEngine struct {
	mu       sync.Mutex
	builds   int
	opts     []engine.Options
	buildErr error
	handle   *stubHandle
}

func (e *stubEngine) Build(opts engine.Options) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds++
	e.opts = append(e.opts, opts)
	if e.buildErr != nil {
		return nil, e.buildErr
	}
	if e.handle == nil {
		return nil, nil
	}
	return e.handle, nil
}

type stubHandle struct {
	runs         int
	closes       int
	orientations []types.Orientation
	inputs       []*tensor.Image
	groups       []engine.Classifications
	runErr       error
}

func (h *stubHandle) Run(_ context.Context, img *tensor.Image, o types.Orientation) ([]engine.Classifications, error) {
	h.runs++
	h.orientations = append(h.orientations, o)
	h.inputs = append(h.inputs, img)
	if h.runErr != nil {
		return nil, h.runErr
	}
	return h.groups, nil
}

func (h *stubHandle) Close() error {
	h.closes++
	return nil
}

func group(pairs ...any) engine.Classifications {
	g := engine.Classifications{}
	for i := 0; i+1 < len(pairs); i += 2 {
		g.Categories = append(g.Categories, engine.Category{
			Label: pairs[i].(string),
			Score: float32(pairs[i+1].(float64)),
		})
	}
	return g
}

func TestNewDefaults(t *testing.T) {
	c := New(&stubEngine{handle: &stubHandle{}})

	cfg := c.Config()
	assert.Equal(t, "landmarks", cfg.ModelAsset)
	assert.Equal(t, 2, cfg.NumThreads)
	assert.Equal(t, 3, cfg.MaxResults)
	assert.Equal(t, float32(0.4), cfg.ScoreThreshold)
	assert.False(t, c.Ready())
}

func TestThresholdAndMaxResultsPassThrough(t *testing.T) {
	eng := &stubEngine{handle: &stubHandle{}}
	c := New(eng, WithScoreThreshold(0.7), WithMaxResults(1))

	_, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	require.NoError(t, err)

	require.Len(t, eng.opts, 1)
	assert.Equal(t, engine.Options{
		ModelAsset:     "landmarks",
		NumThreads:     2,
		MaxResults:     1,
		ScoreThreshold: 0.7,
	}, eng.opts[0])
}

func TestLazySingleInit(t *testing.T) {
	handle := &stubHandle{}
	eng := &stubEngine{handle: handle}
	c := New(eng)

	assert.Equal(t, 0, eng.builds, "model must not load before first call")

	for i := 0; i < 5; i++ {
		_, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation90)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, eng.builds)
	assert.Equal(t, 5, handle.runs)
	assert.True(t, c.Ready())
}

func TestConcurrentFirstCallsBuildOnce(t *testing.T) {
	eng := &stubEngine{handle: &stubHandle{groups: []engine.Classifications{group("louvre", 0.8)}}}
	c := New(eng)
	img := createTestImage(4, 4)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Classify(context.Background(), img, types.Rotation0)
			assert.NoError(t, err)
			assert.Len(t, res, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, eng.builds)
}

func TestEndToEnd(t *testing.T) {
	handle := &stubHandle{groups: []engine.Classifications{
		group("Eiffel Tower", 0.92, "Arc de Triomphe", 0.5),
	}}
	c := New(&stubEngine{handle: handle})

	res, err := c.Classify(context.Background(), createTestImage(16, 9), 90)
	require.NoError(t, err)

	assert.Equal(t, []types.Classification{
		{Name: "Eiffel Tower", Score: 0.92},
		{Name: "Arc de Triomphe", Score: 0.5},
	}, res)
	require.Len(t, handle.orientations, 1)
	assert.Equal(t, types.TopLeft, handle.orientations[0])
	assert.Equal(t, 16, handle.inputs[0].Width)
	assert.Equal(t, 9, handle.inputs[0].Height)
}

func TestOrientationPassedPerRotation(t *testing.T) {
	handle := &stubHandle{}
	c := New(&stubEngine{handle: handle})
	img := createTestImage(4, 4)

	for _, r := range []types.Rotation{270, 90, 180, 0, 45} {
		_, err := c.Classify(context.Background(), img, r)
		require.NoError(t, err)
	}

	assert.Equal(t, []types.Orientation{
		types.BottomRight, types.TopLeft, types.RightBottom, types.RightTop, types.RightTop,
	}, handle.orientations)
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	handle := &stubHandle{groups: []engine.Classifications{
		group("cat", 0.9, "dog", 0.8, "cat", 0.95),
	}}
	c := New(&stubEngine{handle: handle})

	res, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	require.NoError(t, err)

	assert.Equal(t, []types.Classification{
		{Name: "cat", Score: 0.9},
		{Name: "dog", Score: 0.8},
	}, res)
}

func TestFlattenAcrossGroups(t *testing.T) {
	handle := &stubHandle{groups: []engine.Classifications{
		group("big ben", 0.6, "london eye", 0.5),
		{},
		group("london eye", 0.99, "tower bridge", 0.45),
	}}
	c := New(&stubEngine{handle: handle})

	res, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	require.NoError(t, err)

	assert.Equal(t, []types.Classification{
		{Name: "big ben", Score: 0.6},
		{Name: "london eye", Score: 0.5},
		{Name: "tower bridge", Score: 0.45},
	}, res)
}

func TestDisplayNamePreferred(t *testing.T) {
	handle := &stubHandle{groups: []engine.Classifications{{
		Categories: []engine.Category{
			{Label: "/m/02j81", DisplayName: "Eiffel Tower", Score: 0.9},
			{Label: "Eiffel Tower", Score: 0.7},
		},
	}}}
	c := New(&stubEngine{handle: handle})

	res, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	require.NoError(t, err)
	assert.Equal(t, []types.Classification{{Name: "Eiffel Tower", Score: 0.9}}, res)
}

func TestEmptyResultIsNotAnError(t *testing.T) {
	for name, groups := range map[string][]engine.Classifications{
		"nil groups":   nil,
		"empty groups": {},
		"empty group":  {{HeadIndex: 0}},
	} {
		t.Run(name, func(t *testing.T) {
			c := New(&stubEngine{handle: &stubHandle{groups: groups}})
			for i := 0; i < 2; i++ {
				res, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
				require.NoError(t, err)
				assert.NotNil(t, res)
				assert.Empty(t, res)
			}
		})
	}
}

func TestModelLoadFailure(t *testing.T) {
	cause := errors.New("landmarks.onnx: no such file")
	eng := &stubEngine{buildErr: cause}
	c := New(eng)

	_, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelLoad))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, c.Ready())
	assert.Equal(t, 1, eng.builds)
}

func TestNilHandleIsModelLoadFailure(t *testing.T) {
	c := New(&stubEngine{})

	_, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	assert.True(t, errors.Is(err, ErrModelLoad))
}

func TestInvalidImage(t *testing.T) {
	handle := &stubHandle{}
	c := New(&stubEngine{handle: handle})

	_, err := c.Classify(context.Background(), nil, types.Rotation0)
	assert.True(t, errors.Is(err, ErrInvalidImage))

	_, err = c.Classify(context.Background(), image.NewRGBA(image.Rectangle{}), types.Rotation0)
	assert.True(t, errors.Is(err, ErrInvalidImage))
	assert.Equal(t, 0, handle.runs)
}

func TestInferenceFailure(t *testing.T) {
	cause := errors.New("session run failed")
	c := New(&stubEngine{handle: &stubHandle{runErr: cause}})

	_, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	assert.True(t, errors.Is(err, ErrInference))
	assert.True(t, errors.Is(err, cause))
}

func TestClose(t *testing.T) {
	handle := &stubHandle{}
	c := New(&stubEngine{handle: handle})

	_, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, handle.closes)

	_, err = c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestCloseBeforeUse(t *testing.T) {
	eng := &stubEngine{handle: &stubHandle{}}
	c := New(eng)

	require.NoError(t, c.Close())

	_, err := c.Classify(context.Background(), createTestImage(4, 4), types.Rotation0)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, 0, eng.builds)
}

func TestModelClassifierImplementsClassifier(t *testing.T) {
	var _ Classifier = New(&stubEngine{})
}
