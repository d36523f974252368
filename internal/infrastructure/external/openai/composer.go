package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = "You are an HR assistant who writes short, warm onboarding emails. " +
	"Rewrite the draft you are given in the same language, keeping every fact, number and duration unchanged. " +
	`Respond with a JSON object {"subject": string, "body": string} and nothing else.`

// Config holds OpenAI composer settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// chatClient is the part of the OpenAI client the composer uses
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Composer implements port.MessageComposer by asking a chat model to polish
// the template draft. Any model failure falls back to the draft, so email
// delivery never depends on the model being reachable.
type Composer struct {
	client      chatClient
	draft       port.MessageComposer
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

var _ port.MessageComposer = (*Composer)(nil)

// NewComposer creates a new OpenAI composer that polishes drafts from draft
func NewComposer(cfg Config, draft port.MessageComposer, logger *zap.Logger) *Composer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Composer{
		client:      openai.NewClientWithConfig(clientCfg),
		draft:       draft,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
}

type polished struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Compose renders the draft and returns the model's rewrite of it. Escalation
// notices go to HR and are sent as drafted.
func (c *Composer) Compose(ctx context.Context, kind entity.MessageKind, state entity.OnboardingState) (port.Message, error) {
	msg, err := c.draft.Compose(ctx, kind, state)
	if err != nil {
		return port.Message{}, err
	}
	if kind == entity.MessageEscalation {
		return msg, nil
	}

	out, err := c.polish(ctx, kind, msg)
	if err != nil {
		c.logger.Warn("Falling back to template email",
			zap.String("kind", string(kind)),
			zap.Error(err))
		return msg, nil
	}

	msg.Subject = out.Subject
	msg.Body = out.Body
	return msg, nil
}

func (c *Composer) polish(ctx context.Context, kind entity.MessageKind, draft port.Message) (*polished, error) {
	prompt := fmt.Sprintf("Email purpose: %s\n\nSubject: %s\n\n%s", kind, draft.Subject, draft.Body)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	var out polished
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		// Some models wrap JSON in a markdown fence despite the response format
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	if strings.TrimSpace(out.Subject) == "" || strings.TrimSpace(out.Body) == "" {
		return nil, fmt.Errorf("response is missing subject or body")
	}
	return &out, nil
}

// extractJSON returns the outermost {...} of content, or ""
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
