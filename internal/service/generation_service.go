package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"Exam-Prep-Assessment-Backend/internal/client"
	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/content"
	"Exam-Prep-Assessment-Backend/internal/logger"
	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/monitoring"
	"Exam-Prep-Assessment-Backend/internal/parser"
	"Exam-Prep-Assessment-Backend/internal/repository"
	"Exam-Prep-Assessment-Backend/internal/tracing"
	"Exam-Prep-Assessment-Backend/internal/utils"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	AdvisoryUnavailable = "question generation service is unavailable; showing practice questions"
	AdvisoryQuota       = "question generation quota reached; showing practice questions"
	AdvisoryExhausted   = "question generation failed after retries; showing practice questions"
	AdvisoryInvalid     = "generated questions could not be validated; showing practice questions"

	defaultCount = 5
)

var errShortResponse = errors.New("response too short")

// GenerationService turns study material into question items. It never fails:
// when the collaborator cannot deliver, it answers with fallback items and an
// advisory.
type GenerationService struct {
	llm       client.LLMClient
	cache     repository.ResultCache
	prompts   *PromptBuilder
	validator parser.Validator
	cfg       config.GenerationConfig
	ttl       time.Duration
	log       *zap.Logger
	metrics   *monitoring.Metrics

	group singleflight.Group
	sleep func(context.Context, time.Duration) error
}

// NewGenerationService wires the orchestrator. llm and cache may be nil: a nil
// llm always yields fallback items, a nil cache disables caching.
func NewGenerationService(llm client.LLMClient, cache repository.ResultCache, curriculum *repository.CurriculumRepository,
	cfg config.GenerationConfig, ttl time.Duration, log *zap.Logger, metrics *monitoring.Metrics) *GenerationService {
	return &GenerationService{
		llm:       llm,
		cache:     cache,
		prompts:   NewPromptBuilder(curriculum),
		validator: parser.Validator{MinPromptLength: cfg.MinPromptLength},
		cfg:       cfg,
		ttl:       ttl,
		log:       logger.Component(log, "generator"),
		metrics:   metrics,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Generate returns questions for the request. Identical concurrent requests
// share one generation.
func (s *GenerationService) Generate(ctx context.Context, req model.GenerationRequest) model.GenerationResult {
	ctx, span := tracing.Tracer().Start(ctx, "generation.generate")
	defer span.End()

	qt := s.prompts.ResolveType(req)
	req.QuestionType = qt.Code
	req.Kind = qt.Kind
	if req.Count <= 0 {
		req.Count = defaultCount
	}
	if s.cfg.MaxCount > 0 && req.Count > s.cfg.MaxCount {
		req.Count = s.cfg.MaxCount
	}
	if !qt.Visual {
		req.Images = nil
	} else if s.cfg.MaxImages >= 0 && len(req.Images) > s.cfg.MaxImages {
		req.Images = req.Images[:s.cfg.MaxImages]
	}

	prepared := content.Prepare(req.Content, req.TopicHint, s.cfg.MaxContentLength)
	key := utils.DeriveCacheKey(req, prepared)
	span.SetAttributes(attribute.String("cache_key", key), attribute.String("question_type", qt.Code))

	v, _, shared := s.group.Do(key, func() (interface{}, error) {
		return s.generate(ctx, req, qt, prepared, key), nil
	})
	res := v.(model.GenerationResult)
	if shared {
		res.Items = append([]model.QuestionItem(nil), res.Items...)
	}
	s.metrics.Generation(string(res.Source))
	span.SetAttributes(attribute.String("source", string(res.Source)), attribute.Int("items", len(res.Items)))
	return res
}

func (s *GenerationService) generate(ctx context.Context, req model.GenerationRequest, qt repository.QuestionType, prepared, key string) model.GenerationResult {
	if items, ok := s.cached(ctx, key); ok {
		s.log.Info("cache hit", zap.String("key", key), zap.Int("items", len(items)))
		return model.GenerationResult{Items: items, Source: model.SourceCache, CacheKey: key, Advisory: partialAdvisory(len(items), req.Count)}
	}

	if s.llm == nil {
		return s.fallback(req, qt, key, AdvisoryUnavailable)
	}

	prompt := s.prompts.Build(req, qt, prepared, false)
	temperature := s.cfg.Temperature
	backoff := s.cfg.Backoff
	strictUsed := false

	for attempt := 1; ; {
		text, err := s.call(ctx, prompt, req.Images, temperature)
		if err != nil && client.IsQuotaError(err) {
			s.metrics.LLMAttempt("quota")
			s.log.Warn("provider quota reached, skipping retries", zap.Error(err))
			return s.fallback(req, qt, key, AdvisoryQuota)
		}
		if err != nil {
			s.metrics.LLMAttempt(outcome(err))
			s.log.Warn("generation attempt failed",
				zap.Int("attempt", attempt), zap.Float32("temperature", temperature), zap.Error(err))
			if attempt >= s.cfg.MaxAttempts {
				return s.fallback(req, qt, key, AdvisoryExhausted)
			}
			if err := s.sleep(ctx, backoff); err != nil {
				return s.fallback(req, qt, key, AdvisoryExhausted)
			}
			attempt++
			backoff *= 2
			temperature = lower(temperature, s.cfg.TemperatureStep)
			continue
		}

		items := s.usable(parser.Parse(text, qt.Kind), req, qt)
		if len(items) == 0 {
			s.metrics.LLMAttempt("invalid")
			if strictUsed {
				s.log.Warn("no usable questions after strict retry")
				return s.fallback(req, qt, key, AdvisoryInvalid)
			}
			s.log.Info("no usable questions, retrying with strict prompt", zap.Int("response_chars", len(text)))
			strictUsed = true
			prompt = s.prompts.Build(req, qt, prepared, true)
			temperature = lower(temperature, s.cfg.TemperatureStep)
			continue
		}
		s.metrics.LLMAttempt("ok")

		s.store(ctx, key, items)
		return model.GenerationResult{Items: items, Source: model.SourceLLM, CacheKey: key, Advisory: partialAdvisory(len(items), req.Count)}
	}
}

func (s *GenerationService) call(ctx context.Context, prompt Prompt, images []model.Image, temperature float32) (string, error) {
	start := time.Now()
	text, err := s.llm.Generate(ctx, client.GenerateRequest{
		System:          prompt.System,
		Prompt:          prompt.User,
		Images:          images,
		Temperature:     temperature,
		MaxOutputTokens: s.cfg.MaxOutputTokens,
	})
	s.metrics.ObserveLLM(s.llm.Name(), time.Since(start))
	if err != nil {
		return "", err
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < s.cfg.MinResponseChars {
		return "", fmt.Errorf("%w: %d chars", errShortResponse, utf8.RuneCountInString(strings.TrimSpace(text)))
	}
	return text, nil
}

// usable enriches parsed items with the request's defaults and provenance,
// then keeps the valid ones of the requested kind, at most req.Count.
func (s *GenerationService) usable(parsed []model.QuestionItem, req model.GenerationRequest, qt repository.QuestionType) []model.QuestionItem {
	reference := s.prompts.curriculum.Reference(req.Curriculum)
	candidates := parsed[:0]
	for _, item := range parsed {
		if item.Kind != qt.Kind {
			continue
		}
		enrich(&item, req, qt, reference)
		candidates = append(candidates, item)
	}
	valid, rejected := s.validator.Filter(candidates)
	for _, err := range rejected {
		s.log.Debug("discarded generated item", zap.Error(err))
	}
	if len(valid) > req.Count {
		valid = valid[:req.Count]
	}
	return valid
}

func enrich(item *model.QuestionItem, req model.GenerationRequest, qt repository.QuestionType, reference string) {
	if item.Marks <= 0 {
		item.Marks = qt.Marks
	}
	if item.WordLimit == "" {
		item.WordLimit = qt.WordLimit
	}
	if item.Difficulty == "" {
		item.Difficulty = req.Difficulty
	}
	item.QuestionType = qt.Code
	item.Curriculum = req.Curriculum
	if reference != "" {
		item.Reference = reference
	}
}

func (s *GenerationService) fallback(req model.GenerationRequest, qt repository.QuestionType, key, advisory string) model.GenerationResult {
	items := FallbackItems(req, qt, req.Count)
	reference := s.prompts.curriculum.Reference(req.Curriculum)
	for i := range items {
		items[i].Curriculum = req.Curriculum
		items[i].Reference = reference
	}
	s.log.Warn("serving fallback questions", zap.String("reason", advisory), zap.Int("items", len(items)))
	return model.GenerationResult{Items: items, Source: model.SourceFallback, Advisory: advisory, CacheKey: key}
}

func (s *GenerationService) cached(ctx context.Context, key string) ([]model.QuestionItem, bool) {
	if s.cache == nil {
		return nil, false
	}
	entry, ok := s.cache.Get(ctx, key, s.ttl)
	s.metrics.CacheLookup(ok)
	if !ok {
		return nil, false
	}
	var items []model.QuestionItem
	if err := json.Unmarshal(entry.Payload, &items); err != nil || len(items) == 0 {
		s.log.Warn("unusable cache entry, regenerating", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return items, true
}

func (s *GenerationService) store(ctx context.Context, key string, items []model.QuestionItem) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(items)
	if err != nil {
		s.log.Error("encode items for cache", zap.Error(err))
		return
	}
	if err := s.cache.Put(ctx, key, payload); err != nil {
		s.log.Warn("cache write failed, continuing uncached", zap.String("key", key), zap.Error(err))
	}
}

// EvictExpired drops stale entries from the result cache.
func (s *GenerationService) EvictExpired(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.EvictExpired(ctx, s.ttl)
}

func lower(t, step float32) float32 {
	if t -= step; t < 0 {
		return 0
	}
	return t
}

func outcome(err error) string {
	if errors.Is(err, errShortResponse) {
		return "short"
	}
	return "error"
}

// partialAdvisory is empty when got covers want.
func partialAdvisory(got, want int) string {
	if got >= want {
		return ""
	}
	return fmt.Sprintf("only %d of %d requested questions could be generated", got, want)
}
