package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"Exam-Prep-Assessment-Backend/internal/client"
	"Exam-Prep-Assessment-Backend/internal/logger"
	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GenerateRequest struct {
	Content      string           `json:"content" binding:"required"`
	TopicHint    string           `json:"topic_hint"`
	Count        int              `json:"count" binding:"gte=0,lte=50"`
	Difficulty   string           `json:"difficulty"`
	QuestionType string           `json:"question_type"`
	Kind         model.Kind       `json:"kind"`
	Scenario     bool             `json:"scenario"`
	Curriculum   model.Curriculum `json:"curriculum"`
	Images       []model.Image    `json:"images"`
}

type EvaluateRequest struct {
	Item       model.QuestionItem `json:"item"`
	Submission model.Submission   `json:"submission"`
}

type EvaluateBatchRequest struct {
	Items       []model.QuestionItem `json:"items" binding:"required,min=1"`
	Submissions []model.Submission   `json:"submissions"`
}

type AttemptRequest struct {
	Student     string               `json:"student"`
	Items       []model.QuestionItem `json:"items"`
	Submissions []model.Submission   `json:"submissions"`
}

type PublishRequest struct {
	Items []model.QuestionItem `json:"items" binding:"required,min=1"`
}

type ExamHandler struct {
	generation  *service.GenerationService
	evaluation  *service.EvaluationService
	assessments *service.AssessmentService
	minContent  int
	log         *zap.Logger
}

func NewExamHandler(generation *service.GenerationService, evaluation *service.EvaluationService,
	assessments *service.AssessmentService, minContent int, log *zap.Logger) *ExamHandler {
	return &ExamHandler{
		generation:  generation,
		evaluation:  evaluation,
		assessments: assessments,
		minContent:  minContent,
		log:         logger.Component(log, "api"),
	}
}

func (h *ExamHandler) handleError(c *gin.Context, err error, contextMsg string) {
	switch {
	case errors.Is(err, client.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "request quota exceeded, try again later"})
	case errors.Is(err, model.ErrInvalidItem):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   contextMsg,
			"details": err.Error(),
		})
	default:
		h.log.Error(contextMsg, zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   contextMsg,
			"details": err.Error(),
		})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request parameters", "details": err.Error()})
}

func (h *ExamHandler) GenerateHandler(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(req.Content)); n < h.minContent {
		badRequest(c, fmt.Errorf("content has %d characters, at least %d are required", n, h.minContent))
		return
	}

	res := h.generation.Generate(c.Request.Context(), model.GenerationRequest{
		Content:      req.Content,
		TopicHint:    req.TopicHint,
		Count:        req.Count,
		Difficulty:   req.Difficulty,
		QuestionType: req.QuestionType,
		Kind:         req.Kind,
		Scenario:     req.Scenario,
		Curriculum:   req.Curriculum,
		Images:       req.Images,
	})
	c.JSON(http.StatusOK, res)
}

func (h *ExamHandler) EvaluateHandler(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.evaluation.Evaluate(c.Request.Context(), req.Item, req.Submission)
	if err != nil {
		h.handleError(c, err, "failed to evaluate answer")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ExamHandler) EvaluateBatchHandler(c *gin.Context) {
	var req EvaluateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.evaluation.EvaluateBatch(c.Request.Context(), req.Items, req.Submissions)
	if err != nil {
		h.handleError(c, err, "failed to evaluate answers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": res})
}

func (h *ExamHandler) SubmitAttemptHandler(c *gin.Context) {
	var req AttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := h.evaluation.SubmitAttempt(c.Request.Context(), req.Student, req.Items, req.Submissions)
	if err != nil {
		h.handleError(c, err, "failed to grade attempt")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ExamHandler) HistoryHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"attempts": h.evaluation.History()})
}

func (h *ExamHandler) CurrentAssessmentHandler(c *gin.Context) {
	items, published := h.assessments.Current()
	if items == nil {
		items = []model.QuestionItem{}
	}
	body := gin.H{"questions": items}
	if !published.IsZero() {
		body["timestamp"] = published
	}
	c.JSON(http.StatusOK, body)
}

func (h *ExamHandler) PublishAssessmentHandler(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.assessments.Publish(req.Items); err != nil {
		h.handleError(c, err, "failed to publish assessment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("published %d questions", len(req.Items))})
}

func (h *ExamHandler) ClearAssessmentHandler(c *gin.Context) {
	if err := h.assessments.Clear(); err != nil {
		h.handleError(c, err, "failed to clear assessment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "assessment cleared"})
}

func (h *ExamHandler) CurriculumHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.assessments.Curriculum())
}
