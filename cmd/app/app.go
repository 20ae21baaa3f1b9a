package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Exam-Prep-Assessment-Backend/internal/client"
	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/evaluation"
	"Exam-Prep-Assessment-Backend/internal/logger"
	"Exam-Prep-Assessment-Backend/internal/monitoring"
	"Exam-Prep-Assessment-Backend/internal/repository"
	"Exam-Prep-Assessment-Backend/internal/service"
	"Exam-Prep-Assessment-Backend/internal/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds everything the commands share.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	log     *zap.Logger
	metrics *monitoring.Metrics

	generation  *service.GenerationService
	evaluation  *service.EvaluationService
	assessments *service.AssessmentService

	closers []func(context.Context) error
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	v, err := config.New(configFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log)
	a := &app{v: v, cfg: cfg, log: log}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	a.closers = append(a.closers, shutdownTracing)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = monitoring.NewMetrics(reg)

	fs := afero.NewOsFs()
	cache, err := a.resultCache(ctx, fs)
	if err != nil {
		return nil, err
	}

	curriculum, err := repository.NewCurriculumRepository(fs, cfg.Storage.CurriculumPath)
	if err != nil {
		return nil, fmt.Errorf("load curriculum: %w", err)
	}

	llm, err := client.NewLLMClient(ctx, cfg.LLM)
	switch {
	case errors.Is(err, client.ErrUnavailable):
		log.Warn("no llm configured, generation will serve practice questions", zap.Error(err))
		llm = nil
	case err != nil:
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	embedder, err := client.NewEmbedder(ctx, cfg.Embedding)
	switch {
	case errors.Is(err, client.ErrUnavailable):
		log.Info("semantic scoring disabled, using keyword matching", zap.Error(err))
		embedder = nil
	case err != nil:
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	assessments := repository.NewAssessmentRepository(fs, cfg.Storage.AssessmentPath, log)
	history := repository.NewHistoryRepository(fs, cfg.Storage.HistoryPath, log)

	a.generation = service.NewGenerationService(llm, cache, curriculum, cfg.Generation, cfg.Cache.TTL, log, a.metrics)
	a.evaluation = service.NewEvaluationService(
		evaluation.NewEvaluator(cfg.Evaluation, embedder, log, a.metrics),
		assessments, history, log,
	)
	a.assessments = service.NewAssessmentService(assessments, curriculum)
	return a, nil
}

func (a *app) resultCache(ctx context.Context, fs afero.Fs) (repository.ResultCache, error) {
	switch strings.ToLower(a.cfg.Cache.Backend) {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.log.Warn("redis unreachable, cache lookups will miss until it recovers",
				zap.String("addr", a.cfg.Cache.RedisAddr), zap.Error(err))
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		return repository.NewRedisResultCache(rdb, a.cfg.Cache.TTL, a.log), nil
	case "file", "":
		return repository.NewFileResultCache(fs, a.cfg.Cache.Path, a.log), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.cfg.Cache.Backend)
	}
}

func (a *app) Close(ctx context.Context) {
	a.evaluation.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("shutdown step failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
