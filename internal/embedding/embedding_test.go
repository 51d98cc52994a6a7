package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.7071},
		{"empty", Vector{}, Vector{}, 0.0},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.expected) > 0.001 {
				t.Errorf("expected %.4f, got %.4f", tt.expected, got)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance(Vector{1, 0}, Vector{1, 0}); math.Abs(d) > 1e-9 {
		t.Errorf("expected 0 for identical vectors, got %f", d)
	}
	if d := CosineDistance(Vector{1, 0}, Vector{1, 0, 0}); d != 2 {
		t.Errorf("expected 2 for mismatched lengths, got %f", d)
	}
}

func TestEncodeDecode(t *testing.T) {
	v := Vector{0.25, -1.5, 3.0e-7, 42}
	got, err := Decode(Encode(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(v) {
		t.Fatalf("expected %d dims, got %d", len(v), len(got))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("dim %d: expected %v, got %v", i, v[i], got[i])
		}
	}

	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestNew_Disabled(t *testing.T) {
	if e := New(Config{}); e != nil {
		t.Error("expected nil embedder when no provider configured")
	}
}

func TestNew_KnownDims(t *testing.T) {
	if d := New(Config{Provider: "ollama", Model: "all-minilm"}).Dims(); d != 384 {
		t.Errorf("expected 384 dims, got %d", d)
	}
	if d := New(Config{Provider: "openai"}).Dims(); d != 1536 {
		t.Errorf("expected 1536 dims for the default model, got %d", d)
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("expected /embeddings, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["input"] != "fed cuts rates" {
			t.Errorf("expected input text, got %q", req["input"])
		}
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	e := New(Config{Provider: "openai", BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "custom-embedder"})
	if e.Dims() != 0 {
		t.Errorf("expected unknown dims before the first call, got %d", e.Dims())
	}
	v, err := e.Embed(context.Background(), "fed cuts rates")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(v) != 3 || e.Dims() != 3 {
		t.Errorf("expected 3 dims, got %d (Dims %d)", len(v), e.Dims())
	}
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("expected /api/embeddings, got %s", r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["prompt"] != "tariffs" || req["model"] != "nomic-embed-text" {
			t.Errorf("unexpected request %v", req)
		}
		w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	v, err := New(Config{Provider: "ollama", BaseURL: srv.URL}).Embed(context.Background(), "tariffs")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(v) != 2 {
		t.Errorf("expected 2 dims, got %d", len(v))
	}
}

func TestEmbed_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer notFound.Close()
	if _, err := New(Config{Provider: "ollama", BaseURL: notFound.URL}).Embed(context.Background(), "x"); err == nil {
		t.Error("expected error on non-200 response")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer empty.Close()
	_, err := New(Config{Provider: "openai", BaseURL: empty.URL}).Embed(context.Background(), "x")
	if !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
}
