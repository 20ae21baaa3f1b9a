package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func geminiConfig(apiKey, baseURL string) *genai.ClientConfig {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	return cc
}

func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, geminiConfig(cfg.APIKey, cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model, timeout: seconds(cfg.TimeoutSeconds)}, nil
}

func (c *GeminiClient) Name() string { return "gemini" }

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.Name()),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.images", len(req.Images)),
	)

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, gc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate content failed")
		return "", classify(c.Name(), err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

type GeminiEmbedder struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (*GeminiEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, geminiConfig(cfg.APIKey, cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("create gemini embedding client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model, timeout: seconds(cfg.TimeoutSeconds)}, nil
}

func (e *GeminiEmbedder) Name() string { return "gemini" }

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := tracing.Tracer().Start(ctx, "embedding.batch")
	defer span.End()
	span.SetAttributes(attribute.String("embedding.provider", e.Name()), attribute.Int("embedding.inputs", len(texts)))

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		span.RecordError(err)
		return nil, classify(e.Name(), err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, ErrEmptyResponse
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
