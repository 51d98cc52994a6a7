// Package provider is the boundary to the reasoning provider that turns an
// event and its context into interpretation JSON.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/meridian/internal/config"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/transmission"
)

var (
	// ErrRateLimited is returned when the provider rejects a call for rate.
	ErrRateLimited = errors.New("reasoning provider rate limited")
	// ErrMalformedResponse is returned when the provider output cannot be
	// used as interpretation JSON.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrUnavailable is returned for transport failures and timeouts.
	ErrUnavailable = errors.New("reasoning provider unavailable")
)

// DefaultTopics are the impact topics used when the knowledge base has none.
var DefaultTopics = []string{"gold", "silver", "copper"}

// Request is everything the provider sees for one event.
type Request struct {
	Event      *model.Event
	Knowledge  []model.KnowledgeEntry
	Precedents []model.PrecedentMatch
	Topics     []string
	// Note is a corrective instruction added on a re-prompt.
	Note string
}

// TopicsOrDefault returns the request topics or DefaultTopics.
func (r *Request) TopicsOrDefault() []string {
	if len(r.Topics) == 0 {
		return DefaultTopics
	}
	return r.Topics
}

// Provider produces interpretation JSON for a request.
type Provider interface {
	Name() string
	Interpret(ctx context.Context, req *Request) (string, error)
}

// New creates the provider selected by cfg.
func New(ctx context.Context, cfg config.LLMConfig, ev *transmission.Evaluator) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "local":
		return NewLocal(ev), nil
	case "openai":
		return NewOpenAI(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// StripFences removes a Markdown code fence around a JSON answer.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
