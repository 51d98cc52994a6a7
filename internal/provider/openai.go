package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/rcliao/meridian/internal/config"
)

// OpenAI calls an OpenAI-compatible chat endpoint through eino. Calls are
// paced by a shared limiter; retries belong to the caller.
type OpenAI struct {
	chat    einomodel.BaseChatModel
	limiter *rate.Limiter
	timeout time.Duration
	model   string
}

// NewOpenAI creates a chat provider from cfg.
func NewOpenAI(ctx context.Context, cfg config.LLMConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.api_key is required for the openai provider")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm.model is required for the openai provider")
	}
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return newOpenAI(chat, cfg), nil
}

func newOpenAI(chat einomodel.BaseChatModel, cfg config.LLMConfig) *OpenAI {
	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = 30
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{
		chat:    chat,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
		timeout: timeout,
		model:   cfg.Model,
	}
}

func (p *OpenAI) Name() string { return "openai:" + p.model }

func (p *OpenAI) Interpret(ctx context.Context, req *Request) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := []*schema.Message{
		{Role: schema.System, Content: SystemPrompt},
		{Role: schema.User, Content: BuildPrompt(req)},
	}
	resp, err := p.chat.Generate(ctx, messages)
	if err != nil {
		return "", classify(ctx, err)
	}
	content := StripFences(resp.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	return content, nil
}

func classify(ctx context.Context, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		return fmt.Errorf("%w: timeout: %w", ErrUnavailable, context.DeadlineExceeded)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
