package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"sort"
	"time"

	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/tracing"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OpenAIClient talks to any OpenAI compatible chat completions endpoint.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func newOpenAIConfig(apiKey, baseURL string, timeoutSec int) openai.ClientConfig {
	c := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	if timeoutSec > 0 {
		c.HTTPClient = &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}
	}
	return c
}

func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(newOpenAIConfig(cfg.APIKey, cfg.BaseURL, cfg.TimeoutSeconds)),
		model:   cfg.Model,
		timeout: seconds(cfg.TimeoutSeconds),
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.Name()),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.images", len(req.Images)),
	)

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Images) == 0 {
		user.Content = req.Prompt
	} else {
		user.MultiContent = []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
		for _, img := range req.Images {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}
	messages = append(messages, user)

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return "", classify(c.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(newOpenAIConfig(cfg.APIKey, cfg.BaseURL, cfg.TimeoutSeconds)),
		model:   model,
		timeout: seconds(cfg.TimeoutSeconds),
	}
}

func (e *OpenAIEmbedder) Name() string { return "openai" }

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := tracing.Tracer().Start(ctx, "embedding.batch")
	defer span.End()
	span.SetAttributes(attribute.String("embedding.provider", e.Name()), attribute.Int("embedding.inputs", len(texts)))

	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		span.RecordError(err)
		return nil, classify(e.Name(), err)
	}
	if len(resp.Data) != len(texts) {
		return nil, ErrEmptyResponse
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
