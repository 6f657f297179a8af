package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kevinb28-21/CropView-sub001/internal/analyzer"
	"github.com/kevinb28-21/CropView-sub001/internal/config"
	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/internal/logger"
	"github.com/kevinb28-21/CropView-sub001/internal/metrics"
	"github.com/kevinb28-21/CropView-sub001/internal/service"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// NewHandler wires the HTTP routes onto a gin engine
func NewHandler(svc service.FieldAnalysisService, cfg *config.Config) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		metricsMiddleware(),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/analyze", analyzeImage(svc, cfg))
	r.POST("/upload", uploadImage(svc, cfg))
	r.GET("/analyses/:id", getAnalysis(svc, cfg))

	return r
}

// defaultOptions builds pipeline options from the configured defaults
func defaultOptions(cfg *config.Config) analyzer.Options {
	return analyzer.DefaultOptions().
		WithSoilFactor(cfg.SoilFactor).
		WithGridResolution(cfg.GridResolution).
		WithHealthyThreshold(cfg.HealthyThreshold).
		WithModel(cfg.ModelPath)
}

// applyOverrides folds per-request option overrides onto the defaults
func applyOverrides(opts analyzer.Options, payload *models.AnalysisOptionsPayload) analyzer.Options {
	if payload == nil {
		return opts
	}
	if payload.SoilFactor != nil {
		opts = opts.WithSoilFactor(*payload.SoilFactor)
	}
	if payload.GridResolution != nil {
		opts = opts.WithGridResolution(*payload.GridResolution)
	}
	if payload.HealthyThreshold != nil {
		opts = opts.WithHealthyThreshold(*payload.HealthyThreshold)
	}
	return opts
}

func analyzeImage(svc service.FieldAnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.AnalysisTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing field analysis request")

		var req models.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"ip": c.ClientIP(),
			}).Error("Invalid request format")
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		opts := applyOverrides(defaultOptions(cfg), req.Options)

		result, err := svc.AnalyzeURL(ctx, req.URL, req.Channels, opts)
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"url":      req.URL,
				"channels": req.Channels,
				"ip":       c.ClientIP(),
			}).Error("Field analysis failed")
			respondError(c, statusFor(ctx, err), "analysis failed", err)
			return
		}

		duration := time.Since(startTime)
		logger.WithFields(logrus.Fields{
			"url":                req.URL,
			"channels":           req.Channels,
			"category":           result.Classification.Category,
			"health_score":       result.HealthScore,
			"processing_time_ms": duration.Milliseconds(),
		}).Info("Field analysis completed successfully")

		c.JSON(http.StatusOK, result)
	}
}

func uploadImage(svc service.FieldAnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			respondError(c, http.StatusBadRequest, "missing file field", err)
			return
		}
		defer file.Close()

		channels, err := strconv.Atoi(c.PostForm("channels"))
		if err != nil {
			respondError(c, http.StatusBadRequest, "missing or invalid channels field", err)
			return
		}

		var gps *models.GPSPoint
		if raw := c.PostForm("gps"); raw != "" {
			var point models.GPSPoint
			if err := json.Unmarshal([]byte(raw), &point); err != nil {
				respondError(c, http.StatusBadRequest, "invalid gps field", err)
				return
			}
			gps = &point
		}

		data, err := io.ReadAll(file)
		if err != nil {
			respondError(c, http.StatusBadRequest, "failed to read uploaded file", err)
			return
		}

		img, err := svc.IngestUpload(ctx, header.Filename, data, channels, gps)
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"filename": header.Filename,
				"ip":       c.ClientIP(),
			}).Error("Upload rejected")
			respondError(c, statusFor(ctx, err), "upload rejected", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"image_id": img.ID,
			"filename": img.Filename,
			"size":     len(data),
		}).Info("Field image uploaded")

		c.JSON(http.StatusAccepted, models.UploadResponse{
			ImageID:    img.ID,
			Filename:   img.Filename,
			StorageKey: img.StorageKey,
			Status:     img.Status,
		})
	}
}

func getAnalysis(svc service.FieldAnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		snapshot, err := svc.GetAnalysis(ctx, c.Param("id"))
		if err != nil {
			respondError(c, statusFor(ctx, err), "failed to load analysis", err)
			return
		}

		c.JSON(http.StatusOK, snapshot)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// FullPath keeps the label cardinality bounded; raw paths would
		// grow without limit
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			respondError(c, statusFor(c.Request.Context(), err), "request processing failed", err)
		}
	}
}

// statusFor maps an error to its HTTP status, preferring the structured
// error's own code and falling back to context state
func statusFor(ctx context.Context, err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
