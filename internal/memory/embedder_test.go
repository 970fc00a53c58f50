package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/icaroo-oliveira/HermesAI/internal/config"
)

func TestEmbedderEmbedSingleOpenAICompat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s", r.Method)
		}
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-embed-key" {
			t.Fatalf("auth header mismatch: %q", r.Header.Get("Authorization"))
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["model"] != "text-embedding-test" {
			t.Fatalf("model = %v", body["model"])
		}
		input, ok := body["input"].(string)
		if !ok {
			t.Fatalf("expected string input, got %T", body["input"])
		}
		if input != "hello embedder" {
			t.Fatalf("input = %q", input)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"index":     0,
				"embedding": []float32{0.1, 0.2, 0.3},
			}},
		})
	}))
	defer srv.Close()

	cfg := newEmbedderTestConfig(srv.URL)
	cfg.Memory.Embedding.Provider = embeddingProviderAPI

	embedder := mustEmbedder(t, cfg)
	vec, err := embedder.Embed(context.Background(), "  hello embedder  ")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	assertFloat32Slice(t, vec, []float32{0.1, 0.2, 0.3})
}

func TestEmbedderEmbedBatchOpenAICompat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s", r.Method)
		}
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Fatalf("expected no auth header for ollama, got %q", got)
		}

		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Model != "text-embedding-test" {
			t.Fatalf("model = %s", body.Model)
		}
		if len(body.Input) != 2 || body.Input[0] != "alpha" || body.Input[1] != "beta" {
			t.Fatalf("unexpected input: %+v", body.Input)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0.4, 0.5}},
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
		})
	}))
	defer srv.Close()

	cfg := newEmbedderTestConfig(srv.URL)
	cfg.Memory.Embedding.Provider = embeddingProviderOllama
	cfg.Memory.Embedding.APIKey = ""

	embedder := mustEmbedder(t, cfg)
	vectors, err := embedder.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedBatch error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	assertFloat32Slice(t, vectors[0], []float32{0.1, 0.2})
	assertFloat32Slice(t, vectors[1], []float32{0.4, 0.5})
}

func TestEmbedderHandlesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(120 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"index":     0,
				"embedding": []float32{0.1, 0.2},
			}},
		})
	}))
	defer srv.Close()

	cfg := newEmbedderTestConfig(srv.URL)
	cfg.Memory.Embedding.Timeout = "20ms"

	embedder := mustEmbedder(t, cfg)
	_, err := embedder.Embed(context.Background(), "timeout case")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "embed: send request:") {
		t.Fatalf("expected wrapped send request error, got %v", err)
	}
}

func TestEmbedderResponseCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"index":     0,
				"embedding": []float32{0.1, 0.2},
			}},
		})
	}))
	defer srv.Close()

	cfg := newEmbedderTestConfig(srv.URL)
	embedder := mustEmbedder(t, cfg)

	_, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected count mismatch error")
	}
	if !strings.Contains(err.Error(), "response count mismatch") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbedderRejectsEmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"index":     0,
				"embedding": []float32{},
			}},
		})
	}))
	defer srv.Close()

	cfg := newEmbedderTestConfig(srv.URL)
	embedder := mustEmbedder(t, cfg)

	_, err := embedder.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected empty-vector error")
	}
	if !strings.Contains(err.Error(), "empty embedding vector") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbedderRejectsDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float32{0.1, 0.2}},
				{"index": 1, "embedding": []float32{0.3, 0.4, 0.5}},
			},
		})
	}))
	defer srv.Close()

	cfg := newEmbedderTestConfig(srv.URL)
	embedder := mustEmbedder(t, cfg)

	_, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !strings.Contains(err.Error(), "inconsistent embedding dimension") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbedderMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"data":`)
	}))
	defer srv.Close()

	cfg := newEmbedderTestConfig(srv.URL)
	embedder := mustEmbedder(t, cfg)

	_, err := embedder.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func newEmbedderTestConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Memory.Embedding.Provider = embeddingProviderAPI
	cfg.Memory.Embedding.BaseURL = baseURL
	cfg.Memory.Embedding.APIKey = "test-embed-key"
	cfg.Memory.Embedding.Model = "text-embedding-test"
	cfg.Memory.Embedding.Timeout = "1s"
	cfg.Memory.Embedding.BatchSize = 16
	return cfg
}

func assertFloat32Slice(t *testing.T, got, want []float32) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("value[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func mustEmbedder(t *testing.T, cfg *config.Config) Embedder {
	t.Helper()
	embedder, err := NewEmbedder(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewEmbedder error: %v", err)
	}
	return embedder
}

func TestEmbedderSplitsBatches(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var body struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		data := make([]map[string]any, len(body.Input))
		for i := range body.Input {
			data[i] = map[string]any{"index": i, "embedding": []float32{float32(len(body.Input[i])), 1}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	cfg := newEmbedderTestConfig(srv.URL)
	cfg.Memory.Embedding.BatchSize = 2

	vectors, err := mustEmbedder(t, cfg).EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("EmbedBatch error: %v", err)
	}
	if n := requests.Load(); n != 3 {
		t.Fatalf("requests = %d, want 3", n)
	}
	for i, v := range vectors {
		if v[0] != float32(i+1) {
			t.Fatalf("vector[%d] = %v, out of order", i, v)
		}
	}
}

func TestEmbedderRejectsConfiguredDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{0.1, 0.2}}},
		})
	}))
	defer srv.Close()

	cfg := newEmbedderTestConfig(srv.URL)
	cfg.Memory.Embedding.Dimension = 3

	_, err := mustEmbedder(t, cfg).Embed(context.Background(), "x")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEmbedderEmptyText(t *testing.T) {
	cfg := newEmbedderTestConfig("http://127.0.0.1:1")
	_, err := mustEmbedder(t, cfg).Embed(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestNewEmbedderProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Memory.Embedding.Provider = "word2vec"
	if _, err := NewEmbedder(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unsupported provider")
	}

	cfg.Memory.Embedding.Provider = embeddingProviderOllama
	embedder, err := NewEmbedder(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewEmbedder error: %v", err)
	}
	if got := embedder.(*embedderClient).baseURL; got != defaultOllamaEmbeddingBaseURL {
		t.Fatalf("baseURL = %q, want %q", got, defaultOllamaEmbeddingBaseURL)
	}

	cfg.Memory.Embedding.Provider = embeddingProviderGenAI
	cfg.Memory.Embedding.APIKey = ""
	cfg.Provider.APIKey = ""
	if _, err := NewEmbedder(context.Background(), cfg); err == nil {
		t.Fatal("expected error for genai without key")
	}
}
