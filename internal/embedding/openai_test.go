package embedding

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Bearer auth, got %q", r.Header.Get("Authorization"))
		}

		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != defaultModel {
			t.Errorf("expected model %q, got %q", defaultModel, req.Model)
		}
		if req.Input != "hello world" {
			t.Errorf("expected input hello world, got %q", req.Input)
		}
		if req.Dimensions != Dimensions {
			t.Errorf("expected dimensions %d, got %d", Dimensions, req.Dimensions)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(apiResponse{
			Data: []apiEmbedding{{Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", discardLogger(), WithBaseURL(srv.URL))
	vec, err := client.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestEmbedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", discardLogger(), WithBaseURL(srv.URL))
	if _, err := client.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error on 429 response")
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(apiResponse{})
	}))
	defer srv.Close()

	client := NewClient("", discardLogger(), WithBaseURL(srv.URL))
	if _, err := client.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error on empty data")
	}
}
