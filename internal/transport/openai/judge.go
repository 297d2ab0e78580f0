package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/metrics"
)

const (
	judgeSystemPrompt = `You decide whether a section of a document is relevant to a search query.
Answer with a single JSON object and nothing else:
{"relevant": true|false, "confidence": <number between 0 and 1>, "reason": "<one short sentence>"}`

	maxSectionRunes = 2000
)

// JudgeConfig holds the chat-completion judge settings.
type JudgeConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Provider    string
	MaxTokens   int
	Temperature float32
	Logger      *zap.Logger
}

// Judge asks an OpenAI-compatible chat model whether a node is relevant to a query.
type Judge struct {
	client      *openai.Client
	model       string
	provider    string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewJudge creates an OpenAI-compatible relevance judge.
func NewJudge(cfg *JudgeConfig) *Judge {
	return &Judge{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		provider:    cfg.Provider,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Judge implements domain.Judge. Transport and decoding failures come back as a
// failed judgment, never as a panic.
func (j *Judge) Judge(ctx context.Context, req domain.JudgeRequest) domain.Judgment {
	if req.Node == nil {
		return domain.FailedJudgment(fmt.Errorf("nil node: %w", domain.ErrJudgeFailed))
	}

	start := time.Now()
	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.model,
		MaxTokens:   j.maxTokens,
		Temperature: j.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
	})
	duration := time.Since(start)

	if err != nil {
		metrics.JudgeRequestsTotal.WithLabelValues(j.provider, j.model, "error").Inc()
		return domain.FailedJudgment(parseAPIError("judge", err, domain.ErrJudgeFailed))
	}
	if len(resp.Choices) == 0 {
		metrics.JudgeRequestsTotal.WithLabelValues(j.provider, j.model, "error").Inc()
		return domain.FailedJudgment(fmt.Errorf("empty judge response: %w", domain.ErrJudgeFailed))
	}

	metrics.JudgeRequestsTotal.WithLabelValues(j.provider, j.model, "success").Inc()
	metrics.JudgeRequestDuration.WithLabelValues(j.provider, j.model).Observe(duration.Seconds())

	judgment, err := ParseJudgment(resp.Choices[0].Message.Content)
	if err != nil {
		j.logger.Debug("Unparseable judge reply",
			zap.String("node_id", req.Node.ID),
			zap.String("content", resp.Choices[0].Message.Content),
		)
		return domain.FailedJudgment(err)
	}
	return judgment
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (j *Judge) HealthCheck(ctx context.Context) error {
	if _, err := j.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func userPrompt(req domain.JudgeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", req.Query)
	if req.ParentContext != "" {
		fmt.Fprintf(&b, "Location: %s\n", req.ParentContext)
	}
	fmt.Fprintf(&b, "Section title: %s\n", req.Node.Title)
	fmt.Fprintf(&b, "Section content: %s\n", clip(req.Node.Body(), maxSectionRunes))
	return b.String()
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

type judgmentPayload struct {
	Relevant   *bool    `json:"relevant"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// ParseJudgment decodes a judge reply. Markdown code fences around the JSON are tolerated.
func ParseJudgment(content string) (domain.Judgment, error) {
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var p judgmentPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Judgment{}, fmt.Errorf("decode judgment: %w: %w", domain.ErrMalformedJudgment, err)
	}
	if p.Relevant == nil {
		return domain.Judgment{}, fmt.Errorf("missing \"relevant\": %w", domain.ErrMalformedJudgment)
	}
	if p.Confidence == nil || *p.Confidence < 0 || *p.Confidence > 1 {
		return domain.Judgment{}, fmt.Errorf("confidence out of [0,1]: %w", domain.ErrMalformedJudgment)
	}
	return domain.Judgment{
		Relevant:   *p.Relevant,
		Confidence: *p.Confidence,
		Reason:     p.Reason,
	}, nil
}
