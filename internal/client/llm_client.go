package client

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks Exam-Prep-Assessment-Backend/internal/client LLMClient,Embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/model"

	"github.com/sashabaranov/go-openai"
)

var (
	// ErrQuotaExceeded means the provider refused the call for quota or rate
	// reasons. Callers stop retrying when they see it.
	ErrQuotaExceeded = errors.New("provider quota or rate limit exceeded")
	ErrUnavailable   = errors.New("collaborator unavailable")
	ErrEmptyResponse = errors.New("empty response from model")
)

type GenerateRequest struct {
	System          string
	Prompt          string
	Images          []model.Image
	Temperature     float32
	MaxOutputTokens int
}

// LLMClient is the text generation collaborator.
type LLMClient interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Name() string
}

// Embedder turns a batch of strings into one vector per string.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// NewLLMClient returns the configured collaborator, or ErrUnavailable when no
// API key is configured.
func NewLLMClient(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: no llm api key", ErrUnavailable)
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "gemini", "":
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewEmbedder returns the configured embedding collaborator, or ErrUnavailable
// when embeddings are disabled or unconfigured.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	if !cfg.Enabled || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: embeddings disabled", ErrUnavailable)
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIEmbedder(cfg), nil
	case "gemini", "":
		return NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// withTimeout bounds one collaborator call. Zero leaves ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

var quotaMarkers = []string{"quota", "rate limit", "ratelimit", "resource_exhausted", "too many requests", "429"}

// IsQuotaError reports whether err is a quota or rate limit refusal.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func classify(provider string, err error) error {
	if IsQuotaError(err) {
		return fmt.Errorf("%w: %s: %v", ErrQuotaExceeded, provider, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}
