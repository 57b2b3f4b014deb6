package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cartrita/cartrita/internal/apiv2"
)

func testGateway(t *testing.T, cfg Config) *Gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := NewGateway(cfg, Services{}, nil, logger)
	g.configure()
	return g
}

func doRequest(g *Gateway, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	g.okapi.ServeHTTP(rec, req)
	return rec
}

func TestTaskExportAcceptsPost(t *testing.T) {
	g := testGateway(t, Config{})

	// No bearer token: auth rejects with 401. A 404 or 405 would mean the
	// route is not mounted for POST at all.
	rec := doRequest(g, http.MethodPost, "/api/agents/tasks/export", `{"format":"json"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/agents/tasks/export = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	// The GET alias stays mounted.
	rec = doRequest(g, http.MethodGet, "/api/agents/tasks/export", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/agents/tasks/export = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	g := testGateway(t, Config{MaxRequestSize: 64})

	body := `{"email":"` + strings.Repeat("a", 200) + `@example.com","password":"x"}`
	rec := doRequest(g, http.MethodPost, "/api/v2/auth/login", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}

	var envelope struct {
		Success bool           `json:"success"`
		Error   string         `json:"error"`
		Meta    map[string]any `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if envelope.Success {
		t.Error("success = true on a rejected request")
	}
	if envelope.Meta["error_type"] != apiv2.TypePayloadTooLarge {
		t.Errorf("error_type = %v, want %s", envelope.Meta["error_type"], apiv2.TypePayloadTooLarge)
	}
}

func TestBodyWithinLimitPassesSizeCheck(t *testing.T) {
	g := testGateway(t, Config{MaxRequestSize: 1024})

	// Small body clears the size gate; the 401 comes from the auth layer on
	// the authenticated group.
	rec := doRequest(g, http.MethodPost, "/api/v2/workflows", `{"name":"n"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
