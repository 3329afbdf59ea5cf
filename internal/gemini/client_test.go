package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.GenerationConfig.Temperature != 0.0 {
			t.Errorf("expected temperature 0, got %f", req.GenerationConfig.Temperature)
		}
		if req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("expected json mime type, got %s", req.GenerationConfig.ResponseMimeType)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": `{"approval":"approved"}`},
				}}},
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", "test-embed")
	c.SetBaseURL(server.URL)

	text, err := c.GenerateJSON(context.Background(), "prompt", json.RawMessage(`{"type":"OBJECT"}`))
	if err != nil {
		t.Fatalf("GenerateJSON failed: %v", err)
	}
	if text != `{"approval":"approved"}` {
		t.Errorf("unexpected text %q", text)
	}
}

func TestGenerateJSON_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    429,
				"status":  "RESOURCE_EXHAUSTED",
				"message": "quota exceeded",
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", "test-embed")
	c.SetBaseURL(server.URL)

	_, err := c.GenerateJSON(context.Background(), "prompt", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		t.Errorf("expected api error detail, got %v", err)
	}
}

func TestGenerateJSON_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", "test-embed")
	c.SetBaseURL(server.URL)

	_, err := c.GenerateJSON(context.Background(), "prompt", nil)
	if err == nil {
		t.Fatal("expected error on empty candidates")
	}
}

func TestEmbed_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "test-embed:embedContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.TaskType != "SEMANTIC_SIMILARITY" {
			t.Errorf("expected SEMANTIC_SIMILARITY task type, got %s", req.TaskType)
		}
		if req.OutputDimensionality != 3 {
			t.Errorf("expected dim 3, got %d", req.OutputDimensionality)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float64{0.1, 0.2, 0.3}},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", "test-embed")
	c.SetBaseURL(server.URL)

	vec, err := c.Embed(context.Background(), "some text", 3)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 values, got %d", len(vec))
	}
	if vec[0] != 0.1 || vec[2] != 0.3 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestEmbed_NoValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": map[string]any{"values": []any{}}})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", "test-embed")
	c.SetBaseURL(server.URL)

	_, err := c.Embed(context.Background(), "some text", 1536)
	if err == nil {
		t.Fatal("expected error on missing values")
	}
}
