package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Exam-Prep-Assessment-Backend/internal/client"
	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/evaluation"
	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/repository"
	"Exam-Prep-Assessment-Backend/internal/service"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const heartMCQ = `{"kind":"mcq","question":"Which organ pumps blood?","marks":1,
	"options":{"A":"Lung","B":"Heart","C":"Liver","D":"Kidney"},"correct_answer":"B","board":"CBSE"}`

type testServer struct {
	engine     *gin.Engine
	evaluation *service.EvaluationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fs := afero.NewMemMapFs()
	curriculum, err := repository.NewCurriculumRepository(fs, "")
	require.NoError(t, err)
	cache := repository.NewFileResultCache(fs, "data/question_cache.json", nil)
	assessments := repository.NewAssessmentRepository(fs, "data/shared_questions.json", nil)
	history := repository.NewHistoryRepository(fs, "data/student_history.json", nil)

	gen := service.NewGenerationService(nil, cache, curriculum, config.GenerationConfig{
		MaxContentLength: 3000,
		MaxAttempts:      2,
		MaxImages:        3,
		MinPromptLength:  10,
		MinResponseChars: 20,
		MaxCount:         20,
	}, 24*time.Hour, nil, nil)
	ev := evaluation.NewEvaluator(config.EvaluationConfig{
		MinAnswerChars:         10,
		KeyPointThreshold:      0.6,
		OverallWeight:          0.4,
		KeyPointWeight:         0.6,
		EmbeddingCacheCapacity: 8,
	}, nil, nil, nil)
	evalSvc := service.NewEvaluationService(ev, assessments, history, nil)
	t.Cleanup(evalSvc.Close)

	h := NewExamHandler(gen, evalSvc, service.NewAssessmentService(assessments, curriculum), 50, nil)

	r := gin.New()
	r.Use(RequestLogger(nil))
	v1 := r.Group("/api/v1")
	v1.POST("/generate", h.GenerateHandler)
	v1.GET("/assessment", h.CurrentAssessmentHandler)
	v1.POST("/assessment", h.PublishAssessmentHandler)
	v1.DELETE("/assessment", h.ClearAssessmentHandler)
	v1.POST("/evaluate", h.EvaluateHandler)
	v1.POST("/evaluate/batch", h.EvaluateBatchHandler)
	v1.POST("/attempts", h.SubmitAttemptHandler)
	v1.GET("/history", h.HistoryHandler)
	v1.GET("/curriculum", h.CurriculumHandler)

	return &testServer{engine: r, evaluation: evalSvc}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestGenerateRejectsShortContent(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/generate", `{"content":"too short","count":2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "at least 50 are required")

	w = s.do(http.MethodPost, "/api/v1/generate", `{"count":2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/generate", `{"content": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateDegradesToPracticeQuestions(t *testing.T) {
	s := newTestServer(t)
	content := strings.Repeat("Photosynthesis converts light energy into chemical energy. ", 3)

	w := s.do(http.MethodPost, "/api/v1/generate", fmt.Sprintf(`{"content":%q,"count":3,"question_type":"SA"}`, content))
	require.Equal(t, http.StatusOK, w.Code)

	var res model.GenerationResult
	decode(t, w, &res)
	assert.Equal(t, model.SourceFallback, res.Source)
	assert.Equal(t, service.AdvisoryUnavailable, res.Advisory)
	require.Len(t, res.Items, 3)
	for _, item := range res.Items {
		assert.Equal(t, model.KindDescriptive, item.Kind)
		assert.Equal(t, 3.0, item.Marks)
		assert.NoError(t, item.Validate())
	}
}

func TestEvaluateSingleItem(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/evaluate", `{"item":`+heartMCQ+`,"submission":{"choice":" b "}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res model.EvaluationResult
	decode(t, w, &res)
	assert.Equal(t, 1.0, res.Score)
	require.NotNil(t, res.Correct)
	assert.True(t, *res.Correct)

	w = s.do(http.MethodPost, "/api/v1/evaluate", `{"item":{"kind":"mcq","question":"Which organ pumps blood?","marks":1},"submission":{"choice":"B"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "invalid question item")
}

func TestEvaluateBatch(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/evaluate/batch",
		`{"items":[`+heartMCQ+`,`+heartMCQ+`],"submissions":[{"choice":"B"},{"choice":"A"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Results []model.EvaluationResult `json:"results"`
	}
	decode(t, w, &body)
	require.Len(t, body.Results, 2)
	assert.Equal(t, 1.0, body.Results[0].Score)
	assert.Equal(t, 0.0, body.Results[1].Score)

	w = s.do(http.MethodPost, "/api/v1/evaluate/batch", `{"items":[`+heartMCQ+`],"submissions":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/v1/evaluate/batch", `{"items":[],"submissions":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishedAssessmentLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/assessment", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"questions":[]}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/attempts", `{"submissions":[{"choice":"B"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/v1/assessment", `{"items":[{"kind":"mcq","question":"Broken","marks":1}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/v1/assessment", `{"items":[`+heartMCQ+`]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var current struct {
		Questions []model.QuestionItem `json:"questions"`
		Timestamp time.Time            `json:"timestamp"`
	}
	decode(t, s.do(http.MethodGet, "/api/v1/assessment", ""), &current)
	require.Len(t, current.Questions, 1)
	assert.False(t, current.Timestamp.IsZero())

	w = s.do(http.MethodPost, "/api/v1/attempts", `{"student":"ravi","submissions":[{"choice":"B"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var report model.AttemptReport
	decode(t, w, &report)
	assert.Equal(t, "A+", report.Grade)
	assert.Equal(t, "CBSE", report.Curriculum.Board)

	s.evaluation.Close()
	var history struct {
		Attempts []model.AttemptReport `json:"attempts"`
	}
	decode(t, s.do(http.MethodGet, "/api/v1/history", ""), &history)
	require.Len(t, history.Attempts, 1)
	assert.Equal(t, report.ID, history.Attempts[0].ID)

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/v1/assessment", "").Code)
	assert.JSONEq(t, `{"questions":[]}`, s.do(http.MethodGet, "/api/v1/assessment", "").Body.String())
}

func TestCurriculumEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/curriculum", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tables repository.CurriculumTables
	decode(t, w, &tables)
	assert.Contains(t, tables.Boards, "CBSE")
	assert.Contains(t, tables.QuestionTypes, "LABEL")
}

func TestHandleErrorStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewExamHandler(nil, nil, nil, 50, nil)

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: gemini: 429", client.ErrQuotaExceeded), http.StatusTooManyRequests},
		{fmt.Errorf("item 0: %w", model.ErrInvalidItem), http.StatusUnprocessableEntity},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		h.handleError(c, tc.err, "failed")
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestRequestIDIsEchoedOrCreated(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/curriculum", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = s.do(http.MethodGet, "/api/v1/curriculum", "")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}
