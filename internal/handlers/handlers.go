package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/landmark-classifier/internal/logger"
	"github.com/menta2k/landmark-classifier/pkg/analyzer"
	"github.com/menta2k/landmark-classifier/pkg/classifier"
	"github.com/menta2k/landmark-classifier/pkg/orientation"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

// RequestIDHeader carries the request id on responses
const RequestIDHeader = "X-Request-ID"

// ClassifyResponse is the body of a successful POST /classify
type ClassifyResponse struct {
	RequestID       string                 `json:"request_id"`
	Rotation        int                    `json:"rotation"`
	Orientation     string                 `json:"orientation"`
	Image           analyzer.ImageInfo     `json:"image"`
	Classifications []types.Classification `json:"classifications"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// Handler serves classification over HTTP
type Handler struct {
	classifier     classifier.Classifier
	analyzer       *analyzer.ImageAnalyzer
	log            logrus.FieldLogger
	maxUpload      int64
	allowedOrigins []string
}

// Option configures a Handler
type Option func(*Handler)

// WithMaxUploadMB limits the multipart body size
func WithMaxUploadMB(mb int) Option {
	return func(h *Handler) { h.maxUpload = int64(mb) << 20 }
}

// WithAllowedOrigins enables CORS for the given origins
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.allowedOrigins = origins }
}

// NewHandler creates a Handler around c. A nil log discards output.
func NewHandler(c classifier.Classifier, log logrus.FieldLogger, opts ...Option) *Handler {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	h := &Handler{
		classifier: c,
		analyzer:   analyzer.New(),
		log:        log,
		maxUpload:  10 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router with CORS applied when origins are configured
func (h *Handler) Routes() http.Handler {
	router := httprouter.New()
	router.GET("/health", h.Health)
	router.POST("/classify", h.Classify)

	if len(h.allowedOrigins) == 0 {
		return router
	}
	c := cors.New(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         600,
	})
	return c.Handler(router)
}

// Health reports liveness and whether the model has been loaded
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	body := map[string]any{"status": "healthy"}
	if r, ok := h.classifier.(interface{ Ready() bool }); ok {
		body["model_loaded"] = r.Ready()
	}
	writeJSON(w, http.StatusOK, body)
}

// Classify accepts a multipart upload with an "image" file and an optional
// "rotation" field in degrees. Without a rotation the upload is taken as
// already upright.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	log := logger.WithRequestID(h.log, requestID)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.fail(w, requestID, http.StatusBadRequest, "failed to parse form")
		return
	}

	rotation := int(types.RotationUpright)
	if raw := strings.TrimSpace(r.FormValue("rotation")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, requestID, http.StatusBadRequest, "rotation must be an integer")
			return
		}
		rotation = n
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.fail(w, requestID, http.StatusBadRequest, "no image file provided, use 'image' as the form field name")
		return
	}
	defer file.Close()

	img, err := h.analyzer.LoadImageFromReader(file)
	if err != nil {
		log.WithError(err).Warn("rejected upload")
		h.fail(w, requestID, http.StatusBadRequest, "invalid image, supported: JPEG, PNG, WebP")
		return
	}
	if err := h.analyzer.ValidateImage(img); err != nil {
		log.WithError(err).Warn("rejected upload")
		h.fail(w, requestID, http.StatusBadRequest, err.Error())
		return
	}
	info := h.analyzer.GetImageInfo(img)

	log.WithFields(logrus.Fields{
		"file":     header.Filename,
		"size":     header.Size,
		"width":    info.Width,
		"height":   info.Height,
		"rotation": rotation,
	}).Debug("classifying upload")

	results, err := h.classifier.Classify(r.Context(), img, types.Rotation(rotation))
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.WithError(err).Error("classification failed")
		}
		h.fail(w, requestID, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ClassifyResponse{
		RequestID:       requestID,
		Rotation:        rotation,
		Orientation:     orientation.FromRotation(types.Rotation(rotation)).String(),
		Image:           info,
		Classifications: results,
	})
}

func (h *Handler) fail(w http.ResponseWriter, requestID string, status int, msg string) {
	writeJSON(w, status, ErrorResponse{RequestID: requestID, Error: msg})
}

// statusFor maps classifier errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, classifier.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
