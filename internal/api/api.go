// Package api exposes the pipeline boundary over HTTP: statement submission,
// progress polling, listing, manual-review resolution and merchant-rule
// confirmation. Authentication is out of scope; the authenticated user id is
// taken from the X-User-ID header set by the fronting layer.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fjacquet/invoice-import/internal/categorizer"
	"fjacquet/invoice-import/internal/importer"
	"fjacquet/invoice-import/internal/logging"
	"fjacquet/invoice-import/internal/models"
	"fjacquet/invoice-import/internal/parsererror"
)

const userHeader = "X-User-ID"

// Server wires the HTTP routes to the orchestrator.
type Server struct {
	orchestrator *importer.Orchestrator
	categorizer  *categorizer.Engine
	logger       logging.Logger
}

// NewServer creates the API server.
func NewServer(o *importer.Orchestrator, c *categorizer.Engine, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewLogrusAdapter("info", "text")
	}
	return &Server{orchestrator: o, categorizer: c, logger: logger}
}

// Router builds the gin engine with all pipeline routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/imports", s.submit)
	r.GET("/imports", s.list)
	r.GET("/imports/:id", s.progress)
	r.POST("/imports/:id/resolve", s.resolve)
	r.POST("/rules/confirm", s.confirmRule)

	return r
}

// submissionResponse is the accepted-job description returned on submit.
type submissionResponse struct {
	ImportID         string `json:"importId"`
	Status           string `json:"status"`
	Source           string `json:"source"`
	OriginalFileName string `json:"originalFileName"`
}

// progressResponse is the polling view of a job.
type progressResponse struct {
	ImportID             string           `json:"importId"`
	Status               string           `json:"status"`
	Message              string           `json:"message"`
	ImportedAt           time.Time        `json:"importedAt"`
	ProcessedAt          *time.Time       `json:"processedAt,omitempty"`
	ErrorMessage         *string          `json:"errorMessage,omitempty"`
	ParsedData           any              `json:"parsedData,omitempty"`
	TotalAmount          *decimal.Decimal `json:"totalAmount,omitempty"`
	BankName             *string          `json:"bankName,omitempty"`
	CardLastFourDigits   *string          `json:"cardLastFourDigits,omitempty"`
	RequiresManualReview bool             `json:"requiresManualReview"`
}

func (s *Server) submit(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}

	cardID, err := strconv.ParseUint(c.PostForm("cardId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cardId must be a number"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}

	job, err := s.orchestrator.Submit(c.Request.Context(), userID, uint(cardID), fileHeader.Filename, data)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, submissionResponse{
		ImportID:         job.ID,
		Status:           string(job.Status),
		Source:           string(job.Source),
		OriginalFileName: job.OriginalFileName,
	})
}

func (s *Server) progress(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}

	job, err := s.orchestrator.Progress(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProgressResponse(job))
}

func (s *Server) list(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}

	var status *models.ImportStatus
	if raw := c.Query("status"); raw != "" {
		parsed := models.ImportStatus(raw)
		status = &parsed
	}

	jobs, err := s.orchestrator.List(c.Request.Context(), userID, status)
	if err != nil {
		s.writeError(c, err)
		return
	}

	responses := make([]progressResponse, 0, len(jobs))
	for i := range jobs {
		responses = append(responses, toProgressResponse(&jobs[i]))
	}
	c.JSON(http.StatusOK, responses)
}

func (s *Server) resolve(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}

	job, err := s.orchestrator.ResolveManualReview(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProgressResponse(job))
}

type confirmRuleRequest struct {
	Pattern  string `json:"pattern" binding:"required"`
	Category string `json:"category" binding:"required"`
}

func (s *Server) confirmRule(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}

	var req confirmRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pattern and category are required"})
		return
	}

	rule, err := s.categorizer.Confirm(c.Request.Context(), userID, req.Pattern, req.Category)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ruleId":            rule.ID,
		"pattern":           rule.Pattern,
		"category":          rule.Category,
		"confirmationCount": rule.ConfirmationCount,
		"autoApply":         rule.AutoApply(s.categorizer.AutoApplyThreshold()),
	})
}

func (s *Server) userID(c *gin.Context) (uint, bool) {
	raw := c.GetHeader(userHeader)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + userHeader + " header"})
		return 0, false
	}
	return uint(id), true
}

func (s *Server) writeError(c *gin.Context, err error) {
	var (
		vErr  *parsererror.ValidationError
		nfErr *parsererror.NotFoundError
		qErr  *parsererror.QueueFullError
		sErr  *parsererror.StateError
	)

	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.As(err, &nfErr):
		c.JSON(http.StatusNotFound, gin.H{"error": nfErr.Error()})
	case errors.As(err, &qErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": qErr.Error()})
	case errors.As(err, &sErr):
		c.JSON(http.StatusConflict, gin.H{"error": sErr.Error()})
	default:
		s.logger.WithError(err).Error("Unhandled API error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func toProgressResponse(job *models.ImportJob) progressResponse {
	resp := progressResponse{
		ImportID:             job.ID,
		Status:               string(job.Status),
		Message:              job.StatusMessage(),
		ImportedAt:           job.ImportedAt,
		ProcessedAt:          job.ProcessedAt,
		ErrorMessage:         job.ErrorMessage,
		TotalAmount:          job.TotalAmount,
		BankName:             job.BankName,
		CardLastFourDigits:   job.CardLastFourDigits,
		RequiresManualReview: job.RequiresManualReview(),
	}
	if len(job.ParsedData) > 0 {
		resp.ParsedData = json.RawMessage(job.ParsedData)
	}
	return resp
}
