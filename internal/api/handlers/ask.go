package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docsense/backend/internal/database"
	"github.com/docsense/backend/internal/models"
	"github.com/docsense/backend/internal/repository"
	"github.com/docsense/backend/internal/services"
	"github.com/docsense/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AskHandler struct {
	orchestrator  *services.RetrievalOrchestrator
	ledger        *repository.Ledger
	trends        *services.TrendTracker
	estimator     *services.PatternEstimator
	cache         *database.Cache
	logger        *logrus.Logger
	trendingLimit int
	patternTTL    time.Duration
}

func NewAskHandler(
	orchestrator *services.RetrievalOrchestrator,
	ledger *repository.Ledger,
	trends *services.TrendTracker,
	estimator *services.PatternEstimator,
	cache *database.Cache,
	trendingLimit int,
	patternTTL time.Duration,
	logger *logrus.Logger,
) *AskHandler {
	if trendingLimit <= 0 {
		trendingLimit = 10
	}
	if patternTTL <= 0 {
		patternTTL = 10 * time.Minute
	}
	return &AskHandler{
		orchestrator:  orchestrator,
		ledger:        ledger,
		trends:        trends,
		estimator:     estimator,
		cache:         cache,
		logger:        logger,
		trendingLimit: trendingLimit,
		patternTTL:    patternTTL,
	}
}

// HandleRegister creates a student account
func (h *AskHandler) HandleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	student := &models.Student{
		Username: strings.TrimSpace(req.Username),
		FullName: strings.TrimSpace(req.FullName),
		Email:    strings.TrimSpace(req.Email),
	}

	if err := h.ledger.Student.Create(student); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			utils.ErrorResponse(c, http.StatusConflict, "Username or email already exists", nil)
			return
		}
		h.logger.WithError(err).Error("Failed to create student")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create student", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"student_id": student.ID,
		"username":   student.Username,
	}).Info("Student registered")

	utils.SuccessResponse(c, http.StatusCreated, "Student created", student)
}

// HandleAsk processes one question end to end
func (h *AskHandler) HandleAsk(c *gin.Context) {
	startTime := time.Now()

	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid ask request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Query cannot be empty", nil)
		return
	}

	if len(query) > 2000 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Query too long (max 2000 characters)", nil)
		return
	}

	if !models.ValidStyle(req.Style) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid retrieval style", nil)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"student_id": req.StudentID,
		"query":      query,
		"style":      req.Style,
	}).Info("Processing ask request")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	outcome, err := h.orchestrator.Handle(ctx, req.StudentID, query, req.Style)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Student not found", nil)
			return
		}
		h.logger.WithError(err).Error("Ask failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Ask failed", err)
		return
	}

	if outcome.Pattern != nil {
		go h.cachePattern(outcome.Pattern)
	}

	results := make([]models.RankedResult, len(outcome.Results))
	for i, r := range outcome.Results {
		results[i] = models.RankedResult{
			ResultID: r.ResultID,
			Modality: r.Modality,
			Score:    r.Score,
			Content:  r.Content,
		}
	}

	response := models.AskResponse{
		QueryID:      outcome.QueryID,
		Results:      results,
		Total:        len(results),
		Pattern:      outcome.Pattern,
		ResponseTime: int(time.Since(startTime).Milliseconds()),
	}

	h.logger.WithFields(logrus.Fields{
		"query_id":      outcome.QueryID,
		"results_count": len(results),
		"response_time": response.ResponseTime,
	}).Info("Ask completed successfully")

	utils.SuccessResponse(c, http.StatusOK, "Ask completed", response)
}

// HandleFeedback records thumbs up/down on a surfaced result
func (h *AskHandler) HandleFeedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid feedback format", err)
		return
	}

	if req.Feedback != models.FeedbackThumbsUp && req.Feedback != models.FeedbackThumbsDown {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid feedback type", nil)
		return
	}

	queryID, ok := h.resolveQueryID(c, req.QueryID)
	if !ok {
		return
	}

	if err := h.ledger.Interaction.SetFeedback(queryID, req.ResultID, req.Feedback); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "No interaction for that query and result", nil)
			return
		}
		h.logger.WithError(err).Error("Failed to save feedback")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to save feedback", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"query_id":  queryID,
		"result_id": req.ResultID,
		"feedback":  req.Feedback,
	}).Info("Feedback recorded")

	utils.SuccessResponse(c, http.StatusOK, "Feedback recorded", nil)
}

// HandleClick records that a surfaced result was opened
func (h *AskHandler) HandleClick(c *gin.Context) {
	var req models.ClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid click format", err)
		return
	}

	queryID, ok := h.resolveQueryID(c, req.QueryID)
	if !ok {
		return
	}

	if err := h.ledger.Interaction.SetClicked(queryID, req.ResultID, req.DwellTimeMs); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "No interaction for that query and result", nil)
			return
		}
		h.logger.WithError(err).Error("Failed to record click")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to record click", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Click recorded", nil)
}

// HandleTrending returns the most popular normalized queries
func (h *AskHandler) HandleTrending(c *gin.Context) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = h.trendingLimit
	}
	if limit > 50 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if cached, err := h.cache.GetCachedTrendingQueries(ctx); err == nil && len(cached) > 0 {
		if limit < len(cached) {
			cached = cached[:limit]
		}
		utils.SuccessResponse(c, http.StatusOK, "Trending queries retrieved", cached)
		return
	}

	trends, err := h.trends.Top(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get trending queries")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get trending queries", err)
		return
	}

	if err := h.cache.CacheTrendingQueries(ctx, trends, time.Minute); err != nil {
		h.logger.WithError(err).Warn("Failed to cache trending queries")
	}

	utils.SuccessResponse(c, http.StatusOK, "Trending queries retrieved", trends)
}

// HandlePattern returns a student's personalization profile. Pass
// ?refresh=true to force a recompute.
func (h *AskHandler) HandlePattern(c *gin.Context) {
	studentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid student id", err)
		return
	}
	id := uint(studentID)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	refresh := c.Query("refresh") == "true"
	if !refresh {
		if cached, err := h.cache.GetCachedLearningPattern(ctx, id); err == nil {
			utils.SuccessResponse(c, http.StatusOK, "Pattern retrieved", cached)
			return
		}
	}

	var pattern *models.LearningPattern
	if refresh {
		if err := h.cache.InvalidateLearningPattern(ctx, id); err != nil {
			h.logger.WithError(err).Warn("Failed to invalidate cached pattern")
		}
		pattern, err = h.estimator.Recompute(id)
	} else {
		pattern, err = h.estimator.Current(id)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get learning pattern")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get learning pattern", err)
		return
	}

	if pattern == nil {
		pattern = &models.LearningPattern{StudentID: id}
	}

	go h.cachePattern(pattern)

	utils.SuccessResponse(c, http.StatusOK, "Pattern retrieved", pattern)
}

// Helper methods

func (h *AskHandler) resolveQueryID(c *gin.Context, queryID uint) (uint, bool) {
	if queryID != 0 {
		return queryID, true
	}

	latest, err := h.ledger.LatestQueryID()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "No queries recorded yet", nil)
			return 0, false
		}
		h.logger.WithError(err).Error("Failed to resolve latest query")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to resolve latest query", err)
		return 0, false
	}
	return latest, true
}

func (h *AskHandler) cachePattern(pattern *models.LearningPattern) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.cache.CacheLearningPattern(ctx, pattern, h.patternTTL); err != nil {
		h.logger.WithError(err).Warn("Failed to cache learning pattern")
	}
}
