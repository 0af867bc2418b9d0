package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/velivolant/gateway"
)

// Server wires the Feeder and Ledger into gin handlers implementing
// spec.md §6's HTTP surface.
type Server struct {
	feeder *gateway.Feeder
	ledger *gateway.Ledger
	logger *zap.Logger
}

// NewServer builds a Server.
func NewServer(feeder *gateway.Feeder, ledger *gateway.Ledger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{feeder: feeder, ledger: ledger, logger: logger}
}

type submitRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	UserID  string          `json:"userId"`
	EventID string          `json:"eventId"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = callerUserID(c)
	}

	requestID, correlationID, err := s.feeder.Submit(c.Request.Context(), gateway.RequestType(req.Type), req.Payload, gateway.SubmitOptions{
		UserID:  userID,
		EventID: req.EventID,
	})
	if err != nil {
		s.handleSubmitError(c, err)
		return
	}

	ok(c, http.StatusAccepted, gin.H{"requestId": requestID, "correlationId": correlationID})
}

type executeRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	UserID  string          `json:"userId"`
	EventID string          `json:"eventId"`
	Timeout int             `json:"timeout"`
}

func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	timeout := 30 * time.Second
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	userID := req.UserID
	if userID == "" {
		userID = callerUserID(c)
	}

	result, err := s.feeder.SubmitAndWait(c.Request.Context(), gateway.RequestType(req.Type), req.Payload, gateway.SubmitAndWaitOptions{
		UserID:  userID,
		EventID: req.EventID,
		Timeout: timeout,
	})
	if err != nil {
		s.handleExecuteError(c, err)
		return
	}

	ok(c, http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleGetResult(c *gin.Context) {
	requestID := c.Param("requestId")
	result, err := s.ledger.GetByRequestID(c.Request.Context(), requestID)
	if err != nil {
		var notFound *gateway.NotFoundError
		if errors.As(err, &notFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"result": result})
}

type bacRequest struct {
	UserID    string    `json:"userId"`
	EventID   string    `json:"eventId"`
	Libations []float64 `json:"libations"`
}

func (s *Server) handleBAC(c *gin.Context) {
	var req bacRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	result, err := s.feeder.CalculateBAC(c.Request.Context(), req.UserID, req.EventID, req.Libations, 30*time.Second)
	if err != nil {
		s.handleExecuteError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleAnalytics(c *gin.Context) {
	eventID := c.Param("eventId")
	result, err := s.feeder.GetEventAnalytics(c.Request.Context(), eventID, 30*time.Second)
	if err != nil {
		s.handleExecuteError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	eventID := c.Param("eventId")
	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	metric := c.DefaultQuery("metric", "bac")

	result, err := s.feeder.GenerateLeaderboard(c.Request.Context(), eventID, limit, metric, 30*time.Second)
	if err != nil {
		s.handleExecuteError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.ledger.Stats(c.Request.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	recent := make([]gin.H, 0, len(stats.Counts))
	for _, sc := range stats.Counts {
		recent = append(recent, gin.H{"status": sc.Status, "count": sc.Count})
	}

	ok(c, http.StatusOK, gin.H{
		"pendingRequests": s.feeder.PendingCount(),
		"recentResults":   recent,
	})
}

func (s *Server) handleSubmitError(c *gin.Context, err error) {
	var validation *gateway.ValidationError
	var publish *gateway.PublishError
	switch {
	case errors.As(err, &validation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.As(err, &publish):
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

func (s *Server) handleExecuteError(c *gin.Context, err error) {
	var validation *gateway.ValidationError
	var publish *gateway.PublishError
	var timeout *gateway.TimeoutError
	switch {
	case errors.As(err, &validation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.As(err, &timeout):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.As(err, &publish):
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
