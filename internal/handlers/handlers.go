package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// uploadField is the multipart field carrying the image.
const uploadField = "file"

type Predictor interface {
	InputSize() int
	Predict(input []float32) (*model.Prediction, error)
}

type Handler struct {
	predictor      Predictor
	metrics        *metrics.Recorder
	maxUploadBytes int64
	maxImagePixels int64
}

func NewHandler(predictor Predictor, recorder *metrics.Recorder, maxUploadBytes, maxImagePixels int64) *Handler {
	return &Handler{
		predictor:      predictor,
		metrics:        recorder,
		maxUploadBytes: maxUploadBytes,
		maxImagePixels: maxImagePixels,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Predict decodes the uploaded image, normalizes it to the model input size
// and answers with the predicted digit.
func (h *Handler) Predict(c *gin.Context) {
	logger := requestLogger(c)
	h.metrics.IncRequest(c.ClientIP())

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	header, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "missing image file, use 'file' as the form field name"})
		return
	}

	file, err := header.Open()
	if err != nil {
		logger.WithError(err).Error("failed to open upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		logger.WithError(err).Error("failed to read upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}

	logger.WithFields(log.Fields{
		"filename": header.Filename,
		"bytes":    len(content),
	}).Debug("received file")

	img, err := preprocess.Decode(content, h.maxImagePixels)
	if err != nil {
		logger.WithError(err).Warn("upload is not a decodable image")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	input, err := preprocess.Normalize(img, h.predictor.InputSize())
	if err != nil {
		logger.WithError(err).Error("preprocessing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to preprocess image"})
		return
	}

	result, err := h.predictor.Predict(input)
	if err != nil {
		logger.WithError(err).Error("prediction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
		return
	}
	elapsed := time.Since(start)

	h.metrics.ObserveInference(elapsed, len(content))
	if err := h.metrics.SampleSystem(c.Request.Context()); err != nil {
		logger.WithError(err).Warn("failed to sample system metrics")
	}

	logger.WithFields(log.Fields{
		"digit":      result.Digit,
		"confidence": result.Confidence,
		"inference":  elapsed,
	}).Info("prediction served")

	c.JSON(http.StatusOK, model.PredictionResponse{Digit: result.Digit})
}
