// Package embedding turns case and event text into vectors for precedent
// matching.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/meridian/internal/logger"
)

// ErrEmptyEmbedding is returned when a provider answers without a vector.
var ErrEmptyEmbedding = errors.New("no embedding returned")

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// knownDims are the output sizes of common embedding models.
var knownDims = map[string]int{
	"nomic-embed-text":       768,
	"all-minilm":             384,
	"mxbai-embed-large":      1024,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config selects an embedding provider.
type Config struct {
	Provider string // "ollama" | "openai" | "" (disabled)
	Model    string
	BaseURL  string
	APIKey   string
	Dims     int
	Timeout  time.Duration
}

// dialect maps one provider's wire format.
type dialect struct {
	name     string
	path     string
	request  func(model, text string) interface{}
	response func(body []byte) (Vector, error)
}

var ollama = dialect{
	name: "ollama",
	path: "/api/embeddings",
	request: func(model, text string) interface{} {
		return map[string]string{"model": model, "prompt": text}
	},
	response: func(body []byte) (Vector, error) {
		var r struct {
			Embedding Vector `json:"embedding"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		return r.Embedding, nil
	},
}

var openai = dialect{
	name: "openai",
	path: "/embeddings",
	request: func(model, text string) interface{} {
		return map[string]string{"model": model, "input": text}
	},
	response: func(body []byte) (Vector, error) {
		var r struct {
			Data []struct {
				Embedding Vector `json:"embedding"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		if len(r.Data) == 0 {
			return nil, nil
		}
		return r.Data[0].Embedding, nil
	},
}

// HTTPEmbedder calls an Ollama or OpenAI-compatible embedding endpoint.
type HTTPEmbedder struct {
	dialect dialect
	baseURL string
	apiKey  string
	model   string
	client  *http.Client

	mu   sync.Mutex
	dims int
}

// New creates an embedder from configuration. It returns nil when
// embeddings are disabled; callers fall back to keyword matching.
func New(cfg Config) Embedder {
	var d dialect
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		d = ollama
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
		if cfg.Model == "" {
			cfg.Model = "nomic-embed-text"
		}
	case "openai":
		d = openai
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Model == "" {
			cfg.Model = "text-embedding-3-small"
		}
	default:
		return nil
	}
	if cfg.Dims <= 0 {
		cfg.Dims = knownDims[cfg.Model]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		dialect: d,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		dims:    cfg.Dims,
	}
}

// Embed returns the vector of text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	body, err := json.Marshal(e.dialect.request(e.model, text))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+e.dialect.path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s embedding request: %w", e.dialect.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s embedding response: %w", e.dialect.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s embedding error %d: %s", e.dialect.name, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	vec, err := e.dialect.response(data)
	if err != nil {
		return nil, fmt.Errorf("%s embedding response: %w", e.dialect.name, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%s: %w", e.dialect.name, ErrEmptyEmbedding)
	}

	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vec)
	} else if e.dims != len(vec) {
		logger.Log.WithField("model", e.model).Warnf("embedding has %d dims, expected %d", len(vec), e.dims)
	}
	e.mu.Unlock()
	return vec, nil
}

// Dims is the vector size, learned from the first response when the model
// is unknown and unconfigured.
func (e *HTTPEmbedder) Dims() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}
