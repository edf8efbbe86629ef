package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/middleware"
)

// AnalyzeRequest is the body of POST /api/v1/cdss/analyze.
type AnalyzeRequest struct {
	Text string `json:"text" binding:"required,max=10000"`
}

// ScoreRequest is the body of POST /api/v1/cdss/score.
type ScoreRequest struct {
	Rubrics []string `json:"rubrics" binding:"required,min=1,max=50,dive,required"`
}

// MapRequest is the body of POST /api/v1/rubrics/map.
type MapRequest struct {
	Text  string `json:"text" binding:"required,max=10000"`
	Limit int    `json:"limit" binding:"omitempty,min=1,max=100"`
}

// MapResponse lists ranked candidate rubrics.
type MapResponse struct {
	Tokens     []string                 `json:"normalized_tokens"`
	Candidates []domain.CandidateRubric `json:"candidates"`
}

// ScoreResponse lists explained remedies for a confirmed selection.
type ScoreResponse struct {
	Remedies []domain.RemedyExplanation `json:"remedies"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"checks":    checks,
	})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid analyze request", err)
		return
	}

	analysis, err := s.deps.Analyzer.Analyze(c.Request.Context(), req.Text)
	if err != nil {
		s.abortStore(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleScore(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid score request", err)
		return
	}

	remedies, err := s.deps.Analyzer.ScoreRubrics(c.Request.Context(), req.Rubrics)
	if err != nil {
		s.abortStore(c, err)
		return
	}
	c.JSON(http.StatusOK, ScoreResponse{Remedies: remedies})
}

func (s *Server) handleMap(c *gin.Context) {
	var req MapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid map request", err)
		return
	}

	mapping, err := s.deps.Analyzer.Map(c.Request.Context(), req.Text)
	if err != nil {
		s.abortStore(c, err)
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = s.deps.Analyzer.Options().TopRubrics
	}
	c.JSON(http.StatusOK, MapResponse{
		Tokens:     mapping.Tokens.Strings(),
		Candidates: mapping.Top(limit),
	})
}

func (s *Server) handleChapters(c *gin.Context) {
	chapters, err := s.deps.Rubrics.Chapters(c.Request.Context())
	if err != nil {
		s.abortStore(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapters": chapters})
}

func (s *Server) handleChapterRubrics(c *gin.Context) {
	chapter := c.Param("chapter")
	rubrics, err := s.deps.Rubrics.RubricsByChapter(c.Request.Context(), chapter)
	if err != nil {
		s.abortStore(c, err)
		return
	}
	if len(rubrics) == 0 {
		s.abort(c, http.StatusNotFound, domain.ErrNotFoundCode, "unknown chapter", errors.New(chapter))
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapter": chapter, "rubrics": rubrics})
}

func (s *Server) abortStore(c *gin.Context, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.abort(c, http.StatusGatewayTimeout, domain.ErrTimeout, "store call timed out", err)
	case errors.Is(err, domain.ErrNotFound):
		s.abort(c, http.StatusNotFound, domain.ErrNotFoundCode, "not found", err)
	default:
		s.abort(c, http.StatusInternalServerError, domain.ErrDatabaseError, "repertory lookup failed", err)
	}
}

func (s *Server) abort(c *gin.Context, status int, code, message string, err error) {
	requestID := middleware.GetCorrelationID(c)
	details := ""
	if status < http.StatusInternalServerError && err != nil {
		details = err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"code":           code,
			"correlation_id": requestID,
		}).Error(message)
	}
	c.AbortWithStatusJSON(status, domain.NewReperError(code, message, details, requestID))
}
