package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/landmark-classifier/pkg/classifier"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

type fakeClassifier struct {
	results   []types.Classification
	err       error
	rotations []types.Rotation
	ready     bool
}

func (f *fakeClassifier) Classify(_ context.Context, _ image.Image, r types.Rotation) ([]types.Classification, error) {
	f.rotations = append(f.rotations, r)
	return f.results, f.err
}

func (f *fakeClassifier) Ready() bool { return f.ready }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	return pngSized(t, 16, 8)
}

func pngSized(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 32), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// uploadRequest builds a multipart POST /classify request
func uploadRequest(t *testing.T, payload []byte, rotation string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if payload != nil {
		fw, err := mw.CreateFormFile("image", "frame.png")
		require.NoError(t, err)
		_, err = fw.Write(payload)
		require.NoError(t, err)
	}
	if rotation != "" {
		require.NoError(t, mw.WriteField("rotation", rotation))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	h := NewHandler(&fakeClassifier{ready: true}, quietLogger())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
}

func TestClassifySuccess(t *testing.T) {
	fc := &fakeClassifier{results: []types.Classification{
		{Name: "Eiffel Tower", Score: 0.92},
		{Name: "Arc de Triomphe", Score: 0.5},
	}}
	h := NewHandler(fc, quietLogger())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, uploadRequest(t, pngBytes(t), "90"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
	assert.Equal(t, 90, resp.Rotation)
	assert.Equal(t, "TOP_LEFT", resp.Orientation)
	assert.Equal(t, 16, resp.Image.Width)
	assert.Equal(t, fc.results, resp.Classifications)
	assert.Equal(t, []types.Rotation{types.Rotation90}, fc.rotations)
}

func TestClassifyEmptyResultIsOK(t *testing.T) {
	h := NewHandler(&fakeClassifier{results: []types.Classification{}}, quietLogger())

	req := uploadRequest(t, pngBytes(t), "")
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"classifications":[]`)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
}

func TestClassifyWithoutRotationIsUpright(t *testing.T) {
	fc := &fakeClassifier{results: []types.Classification{}}
	h := NewHandler(fc, quietLogger())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, uploadRequest(t, pngBytes(t), ""))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TOP_LEFT", resp.Orientation)
	assert.Equal(t, []types.Rotation{types.RotationUpright}, fc.rotations)
}

func TestClassifySinglePixelPassesValidation(t *testing.T) {
	fc := &fakeClassifier{results: []types.Classification{}}
	h := NewHandler(fc, quietLogger())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, uploadRequest(t, pngSized(t, 1, 1), "0"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, fc.rotations, 1)
}

func TestNewHandlerNilLogger(t *testing.T) {
	h := NewHandler(&fakeClassifier{err: classifier.ErrInference}, nil)

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.Routes().ServeHTTP(rec, uploadRequest(t, pngBytes(t), "0"))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClassifyBadRequests(t *testing.T) {
	h := NewHandler(&fakeClassifier{}, quietLogger())

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing file", uploadRequest(t, nil, "90")},
		{"bad rotation", uploadRequest(t, pngBytes(t), "ninety")},
		{"not an image", uploadRequest(t, []byte("plain text"), "0")},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/classify", bytes.NewBufferString("{}"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestClassifyErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", classifier.ErrInvalidImage), http.StatusBadRequest},
		{fmt.Errorf("%w: no such file", classifier.ErrModelLoad), http.StatusInternalServerError},
		{fmt.Errorf("%w: boom", classifier.ErrInference), http.StatusInternalServerError},
		{classifier.ErrClosed, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewHandler(&fakeClassifier{err: tt.err}, quietLogger())
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, uploadRequest(t, pngBytes(t), "0"))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestUploadLimit(t *testing.T) {
	h := NewHandler(&fakeClassifier{}, quietLogger(), WithMaxUploadMB(0))

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, uploadRequest(t, pngBytes(t), "0"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewHandler(&fakeClassifier{}, quietLogger(), WithAllowedOrigins([]string{"https://app.example"}))

	req := httptest.NewRequest(http.MethodOptions, "/classify", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
