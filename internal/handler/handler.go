package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/metrics"
)

// AttendanceService is what the endpoints need from the core.
type AttendanceService interface {
	MarkAttendance(ctx context.Context, address string) (attendance.Detection, error)
	ExpireStale(ctx context.Context) (int, error)
}

// Handler serves the device-facing API.
type Handler struct {
	svc      AttendanceService
	clock    clock.Clock
	service  string
	log      *zap.Logger
	metrics  *metrics.Metrics
	requests atomic.Uint64
}

// New creates a handler. m may be nil.
func New(svc AttendanceService, clk clock.Clock, serviceName string, log *zap.Logger, m *metrics.Metrics) *Handler {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, clock: clk, service: serviceName, log: log, metrics: m}
}

// Register mounts the API routes under /api.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.POST("/mark-attendance", h.MarkAttendance)
	api.POST("/cleanup-expired", h.CleanupExpired)
}

// ---------- Responses ----------

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

type markAttendanceResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	VerificationID    string `json:"verificationId"`
	StudentName       string `json:"studentName"`
	StudentEnrollment string `json:"studentEnrollment"`
	CourseName        string `json:"courseName"`
	ExpiresIn         int    `json:"expiresIn"`
}

type cleanupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ---------- Health ----------

// Health reports liveness with the current time at +05:30.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: h.clock.Now().Format(time.RFC3339Nano),
		Service:   h.service,
	})
}

// ---------- Mark attendance ----------

type markAttendanceRequest struct {
	MacAddress string `json:"macAddress" binding:"required"`
}

// MarkAttendance receives a MAC address from a sensor and creates (or
// reuses) the student's pending verification.
func (h *Handler) MarkAttendance(c *gin.Context) {
	reqNo := h.requests.Add(1)
	log := h.log.With(zap.Uint64("request", reqNo))
	start := time.Now()

	var req markAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		msg := "No JSON data provided"
		var verrs validator.ValidationErrors
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &verrs):
			msg = "macAddress is required"
		case errors.As(err, &typeErr):
			msg = "macAddress must be a string"
		}
		log.Info("rejected request", zap.String("reason", msg))
		h.count(metrics.OutcomeInvalid)
		c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	log.Info("mac address received", zap.String("mac", req.MacAddress))
	det, err := h.svc.MarkAttendance(c.Request.Context(), req.MacAddress)
	if err != nil {
		h.markAttendanceError(c, log.With(zap.Duration("elapsed", time.Since(start))), err)
		return
	}

	log.Info("pending verification ready",
		zap.String("verification_id", det.VerificationID),
		zap.String("student", det.Member.MemberName),
		zap.String("enrollment", det.Member.Enrollment),
		zap.String("course", det.Member.GroupName),
		zap.Duration("elapsed", time.Since(start)))
	h.count(metrics.OutcomeRecorded)
	c.JSON(http.StatusOK, markAttendanceResponse{
		Success:           true,
		Message:           "Pending verification created",
		VerificationID:    det.VerificationID,
		StudentName:       det.Member.MemberName,
		StudentEnrollment: det.Member.Enrollment,
		CourseName:        det.Member.GroupName,
		ExpiresIn:         int(det.ExpiresIn / time.Second),
	})
}

func (h *Handler) markAttendanceError(c *gin.Context, log *zap.Logger, err error) {
	var (
		ve *attendance.ValidationError
		ce *attendance.ConfigurationError
		nf *attendance.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		log.Info("rejected request", zap.String("reason", ve.Message))
		h.count(metrics.OutcomeInvalid)
		c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Message})
	case errors.As(err, &ce):
		log.Error("server misconfigured", zap.Error(err))
		h.count(metrics.OutcomeMisconfig)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Server configuration error"})
	case errors.As(err, &nf):
		log.Info("student not found or no active class", zap.String("mac", nf.Address))
		h.count(metrics.OutcomeNotFound)
		c.JSON(http.StatusNotFound, errorResponse{
			Error:   "Student not found or no active class",
			Message: "No student with this MAC address found in any active class",
		})
	default:
		log.Error("mark attendance failed", zap.Error(err))
		h.count(metrics.OutcomeStoreError)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:   err.Error(),
			Message: "Internal server error",
		})
	}
}

// ---------- Cleanup ----------

// CleanupExpired runs the expiry sweep on demand.
func (h *Handler) CleanupExpired(c *gin.Context) {
	count, err := h.svc.ExpireStale(c.Request.Context())
	if count > 0 && h.metrics != nil {
		h.metrics.Expired.Add(float64(count))
	}
	if err != nil {
		h.log.Error("cleanup failed", zap.Int("expired_before_failure", count), zap.Error(err))
		if h.metrics != nil {
			h.metrics.SweepFailures.Inc()
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	h.log.Info("cleaned up expired verifications", zap.Int("count", count))
	c.JSON(http.StatusOK, cleanupResponse{
		Success: true,
		Message: fmt.Sprintf("Cleaned up %d expired verifications", count),
		Count:   count,
	})
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.Detections.WithLabelValues(outcome).Inc()
	}
}
