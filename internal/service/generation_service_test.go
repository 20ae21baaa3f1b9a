package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"Exam-Prep-Assessment-Backend/internal/client"
	"Exam-Prep-Assessment-Backend/internal/client/mocks"
	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/repository"

	json "github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const threeMCQs = `[
  {"question": "Which pigment traps light energy in leaves?", "options": {"A": "Chlorophyll", "B": "Haemoglobin", "C": "Keratin", "D": "Melanin"}, "correct_answer": "A", "explanation": "Chlorophyll absorbs light for photosynthesis."},
  {"question": "Through which pores does carbon dioxide enter the leaf?", "options": {"A": "Lenticels", "B": "Stomata", "C": "Root hairs", "D": "Xylem"}, "correct_answer": "B", "explanation": "Gas exchange happens through stomata."},
  {"question": "Which product of photosynthesis is stored as starch?", "options": {"A": "Oxygen", "B": "Water", "C": "Glucose", "D": "Nitrogen"}, "correct_answer": "C", "explanation": "Excess glucose is stored as starch."}
]`

var passage = strings.TrimSpace(strings.Repeat(
	"Photosynthesis is the process by which green plants make their own food. "+
		"Chlorophyll in the leaves absorbs sunlight, and carbon dioxide enters through tiny pores called stomata. "+
		"Water absorbed by the roots is split, oxygen is released, and glucose is formed and later stored as starch. ", 4))

var testGenerationConfig = config.GenerationConfig{
	MaxContentLength: 3000,
	Temperature:      0.3,
	TemperatureStep:  0.1,
	MaxOutputTokens:  2048,
	MaxAttempts:      2,
	Backoff:          2 * time.Second,
	MaxImages:        3,
	MinPromptLength:  10,
	MinResponseChars: 20,
	MaxCount:         20,
}

type harness struct {
	svc    *GenerationService
	now    time.Time
	sleeps []time.Duration
	mu     sync.Mutex
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func newHarness(t *testing.T, llm client.LLMClient) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	h := &harness{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cache := repository.NewFileResultCache(fs, "data/question_cache.json", nil, repository.WithClock(h.clock))
	curriculum, err := repository.NewCurriculumRepository(fs, "")
	require.NoError(t, err)

	h.svc = NewGenerationService(llm, cache, curriculum, testGenerationConfig, 24*time.Hour, nil, nil)
	h.svc.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func newMockLLM(t *testing.T) *mocks.MockLLMClient {
	ctrl := gomock.NewController(t)
	llm := mocks.NewMockLLMClient(ctrl)
	llm.EXPECT().Name().Return("mock").AnyTimes()
	return llm
}

func mcqRequest(count int) model.GenerationRequest {
	return model.GenerationRequest{
		Content:      passage,
		Count:        count,
		Difficulty:   "Understand",
		QuestionType: "MCQ",
		Curriculum:   model.Curriculum{Board: "CBSE", Class: 10, Subject: "Biology", Chapter: "Life Processes"},
	}
}

func encode(t *testing.T, items []model.QuestionItem) string {
	t.Helper()
	b, err := json.Marshal(items)
	require.NoError(t, err)
	return string(b)
}

func TestGenerateThreeMCQsFromPassage(t *testing.T) {
	llm := newMockLLM(t)
	var got client.GenerateRequest
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req client.GenerateRequest) (string, error) {
			got = req
			return "Here are your questions:\n```json\n" + threeMCQs + "\n```", nil
		}).Times(1)
	h := newHarness(t, llm)

	res := h.svc.Generate(context.Background(), mcqRequest(3))

	assert.Equal(t, model.SourceLLM, res.Source)
	assert.Empty(t, res.Advisory)
	require.Len(t, res.Items, 3)
	for _, item := range res.Items {
		assert.Equal(t, model.KindSingleBestAnswer, item.Kind)
		assert.Equal(t, 4, item.Options.Len())
		assert.Contains(t, []string{"A", "B", "C", "D"}, item.CorrectAnswer)
		assert.NotEmpty(t, item.Explanation)
		assert.Equal(t, 1.0, item.Marks)
		assert.Equal(t, "MCQ", item.QuestionType)
		assert.Equal(t, "CBSE", item.Board)
		assert.Equal(t, "Life Processes", item.Chapter)
		assert.Contains(t, item.Reference, "Chapter: Life Processes")
		assert.False(t, item.Fallback)
	}

	assert.InDelta(t, 0.3, got.Temperature, 1e-6)
	assert.Equal(t, 2048, got.MaxOutputTokens)
	assert.Contains(t, got.Prompt, "Create exactly 3 multiple-choice questions")
	assert.Contains(t, got.Prompt, passage[:80])
	assert.Empty(t, got.Images)
}

func TestGenerateIsIdempotentWithinTTL(t *testing.T) {
	llm := newMockLLM(t)
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(threeMCQs, nil).Times(1)
	h := newHarness(t, llm)

	first := h.svc.Generate(context.Background(), mcqRequest(3))
	h.advance(23 * time.Hour)
	second := h.svc.Generate(context.Background(), mcqRequest(3))

	assert.Equal(t, model.SourceLLM, first.Source)
	assert.Equal(t, model.SourceCache, second.Source)
	assert.Equal(t, first.CacheKey, second.CacheKey)
	assert.Equal(t, encode(t, first.Items), encode(t, second.Items))
}

func TestGenerateRegeneratesAfterExpiry(t *testing.T) {
	llm := newMockLLM(t)
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(threeMCQs, nil).Times(2)
	h := newHarness(t, llm)

	h.svc.Generate(context.Background(), mcqRequest(3))
	h.advance(25 * time.Hour)
	res := h.svc.Generate(context.Background(), mcqRequest(3))

	assert.Equal(t, model.SourceLLM, res.Source)
}

func TestParameterChangeMissesCache(t *testing.T) {
	llm := newMockLLM(t)
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(threeMCQs, nil).Times(2)
	h := newHarness(t, llm)

	h.svc.Generate(context.Background(), mcqRequest(3))
	req := mcqRequest(3)
	req.Curriculum.Chapter = "Control and Coordination"
	res := h.svc.Generate(context.Background(), req)

	assert.Equal(t, model.SourceLLM, res.Source)
}

func TestAlwaysFailingCollaboratorYieldsFallback(t *testing.T) {
	llm := newMockLLM(t)
	var temps []float32
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req client.GenerateRequest) (string, error) {
			temps = append(temps, req.Temperature)
			return "", errors.New("connection reset by peer")
		}).Times(2)
	h := newHarness(t, llm)

	res := h.svc.Generate(context.Background(), mcqRequest(4))

	assert.Equal(t, model.SourceFallback, res.Source)
	assert.Equal(t, AdvisoryExhausted, res.Advisory)
	require.Len(t, res.Items, 4)
	for _, item := range res.Items {
		assert.NoError(t, item.Validate())
		assert.True(t, item.Fallback)
		assert.Equal(t, 4, item.Options.Len())
		assert.NotEmpty(t, item.Explanation)
	}
	assert.Equal(t, []time.Duration{2 * time.Second}, h.sleeps)
	require.Len(t, temps, 2)
	assert.InDelta(t, 0.3, temps[0], 1e-6)
	assert.InDelta(t, 0.2, temps[1], 1e-6)

	// fallback items are never cached
	llm2 := newMockLLM(t)
	llm2.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(threeMCQs, nil).Times(1)
	h.svc.llm = llm2
	assert.Equal(t, model.SourceLLM, h.svc.Generate(context.Background(), mcqRequest(4)).Source)
}

func TestQuotaErrorSkipsRetries(t *testing.T) {
	llm := newMockLLM(t)
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).
		Return("", fmt.Errorf("%w: gemini: RESOURCE_EXHAUSTED", client.ErrQuotaExceeded)).Times(1)
	h := newHarness(t, llm)

	res := h.svc.Generate(context.Background(), mcqRequest(2))

	assert.Equal(t, model.SourceFallback, res.Source)
	assert.Equal(t, AdvisoryQuota, res.Advisory)
	assert.Len(t, res.Items, 2)
	assert.Empty(t, h.sleeps)
}

func TestShortResponseIsRetriedWithBackoff(t *testing.T) {
	llm := newMockLLM(t)
	gomock.InOrder(
		llm.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("Sorry.", nil),
		llm.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(threeMCQs, nil),
	)
	h := newHarness(t, llm)

	res := h.svc.Generate(context.Background(), mcqRequest(3))

	assert.Equal(t, model.SourceLLM, res.Source)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, []time.Duration{2 * time.Second}, h.sleeps)
}

const placeholderReply = `[{"question": "Sample question about the passage", "options": {"A": "Option A", "B": "Option B"}, "correct_answer": "A", "explanation": "Because."}]`

func TestInvalidItemsTriggerOneStrictRetry(t *testing.T) {
	llm := newMockLLM(t)
	var prompts []string
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req client.GenerateRequest) (string, error) {
			prompts = append(prompts, req.Prompt)
			if len(prompts) == 1 {
				return placeholderReply, nil
			}
			return threeMCQs, nil
		}).Times(2)
	h := newHarness(t, llm)

	res := h.svc.Generate(context.Background(), mcqRequest(3))

	assert.Equal(t, model.SourceLLM, res.Source)
	assert.Len(t, res.Items, 3)
	assert.NotContains(t, prompts[0], "Your previous reply could not be used")
	assert.Contains(t, prompts[1], "Your previous reply could not be used")
	assert.Empty(t, h.sleeps)
}

func TestInvalidItemsAfterStrictRetryFallBack(t *testing.T) {
	llm := newMockLLM(t)
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(placeholderReply, nil).Times(2)
	h := newHarness(t, llm)

	res := h.svc.Generate(context.Background(), mcqRequest(3))

	assert.Equal(t, model.SourceFallback, res.Source)
	assert.Equal(t, AdvisoryInvalid, res.Advisory)
	assert.Len(t, res.Items, 3)
}

func TestPartialResultCarriesAdvisory(t *testing.T) {
	var two []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(threeMCQs), &two))
	body, err := json.Marshal(two[:2])
	require.NoError(t, err)

	llm := newMockLLM(t)
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(string(body), nil).Times(1)
	h := newHarness(t, llm)

	res := h.svc.Generate(context.Background(), mcqRequest(3))

	assert.Equal(t, model.SourceLLM, res.Source)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, "only 2 of 3 requested questions could be generated", res.Advisory)
}

func TestPartialResultFromCacheKeepsAdvisory(t *testing.T) {
	var two []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(threeMCQs), &two))
	body, err := json.Marshal(two[:2])
	require.NoError(t, err)

	llm := newMockLLM(t)
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(string(body), nil).Times(1)
	h := newHarness(t, llm)

	first := h.svc.Generate(context.Background(), mcqRequest(3))
	h.advance(time.Hour)
	second := h.svc.Generate(context.Background(), mcqRequest(3))

	assert.Equal(t, model.SourceCache, second.Source)
	assert.Len(t, second.Items, 2)
	assert.Equal(t, first.Advisory, second.Advisory)
	assert.Equal(t, "only 2 of 3 requested questions could be generated", second.Advisory)
}

func TestExtraItemsAreTrimmedToCount(t *testing.T) {
	llm := newMockLLM(t)
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(threeMCQs, nil).Times(1)
	h := newHarness(t, llm)

	res := h.svc.Generate(context.Background(), mcqRequest(2))

	assert.Len(t, res.Items, 2)
	assert.Empty(t, res.Advisory)
}

func TestUnavailableCollaboratorYieldsFallback(t *testing.T) {
	h := newHarness(t, nil)

	req := mcqRequest(3)
	req.QuestionType = "SA"
	res := h.svc.Generate(context.Background(), req)

	assert.Equal(t, model.SourceFallback, res.Source)
	assert.Equal(t, AdvisoryUnavailable, res.Advisory)
	require.Len(t, res.Items, 3)
	for _, item := range res.Items {
		assert.Equal(t, model.KindDescriptive, item.Kind)
		assert.Equal(t, 3.0, item.Marks)
		assert.Len(t, item.KeyPoints, 3)
		assert.NoError(t, item.Validate())
	}
}

func TestConcurrentIdenticalRequestsCallOnce(t *testing.T) {
	llm := newMockLLM(t)
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, client.GenerateRequest) (string, error) {
			time.Sleep(20 * time.Millisecond)
			return threeMCQs, nil
		}).Times(1)
	h := newHarness(t, llm)

	var wg sync.WaitGroup
	results := make([]model.GenerationResult, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.svc.Generate(context.Background(), mcqRequest(3))
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Len(t, r.Items, 3)
		assert.NotEqual(t, model.SourceFallback, r.Source)
	}
}

func TestImagesOnlyForVisualTypes(t *testing.T) {
	images := []model.Image{{MIMEType: "image/png", Data: []byte{1}}, {MIMEType: "image/png", Data: []byte{2}},
		{MIMEType: "image/png", Data: []byte{3}}, {MIMEType: "image/png", Data: []byte{4}}}

	llm := newMockLLM(t)
	var seen [][]model.Image
	llm.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req client.GenerateRequest) (string, error) {
			seen = append(seen, req.Images)
			return "", errors.New("offline")
		}).AnyTimes()
	h := newHarness(t, llm)

	req := mcqRequest(1)
	req.Images = images
	h.svc.Generate(context.Background(), req)

	req.QuestionType = "LABEL"
	res := h.svc.Generate(context.Background(), req)

	require.NotEmpty(t, seen)
	assert.Empty(t, seen[0])
	assert.Len(t, seen[len(seen)-1], 3)
	require.Len(t, res.Items, 1)
	assert.Equal(t, model.KindDiagramLabel, res.Items[0].Kind)
	assert.NoError(t, res.Items[0].Validate())
}
