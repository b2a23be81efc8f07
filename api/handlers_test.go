package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r, &Config{Port: "0", MaxFileSize: 1 << 20, TempDir: t.TempDir()})
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleScan_RejectsBadRequests(t *testing.T) {
	r := testRouter(t)

	t.Run("no files", func(t *testing.T) {
		w := postJSON(t, r, "/api/watermark/scan", map[string]any{"files": []string{}})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("ratio out of range", func(t *testing.T) {
		w := postJSON(t, r, "/api/watermark/scan", map[string]any{"files": []string{"a.pdf"}, "ratio": 1.5})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("bad pages specifier", func(t *testing.T) {
		w := postJSON(t, r, "/api/watermark/scan", map[string]any{"files": []string{"a.pdf"}, "ratio": 0.5, "pages": "5-2"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/watermark/scan", bytes.NewReader([]byte("{")))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})
}

func TestHandleScan_CollectsPerFileErrors(t *testing.T) {
	r := testRouter(t)

	// A nonexistent file must produce a per-file error, not an HTTP error.
	w := postJSON(t, r, "/api/watermark/scan", map[string]any{
		"files": []string{"/nonexistent/file.pdf"},
		"ratio": 0.5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Candidates []any `json:"candidates"`
		Errors     []struct {
			File   string `json:"file"`
			Reason string `json:"reason"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].File != "/nonexistent/file.pdf" {
		t.Fatalf("errors = %+v, want one entry for the missing file", resp.Errors)
	}
	if len(resp.Candidates) != 0 {
		t.Fatalf("candidates = %v, want none", resp.Candidates)
	}
}

func TestHandleRemove_RejectsBadRequests(t *testing.T) {
	r := testRouter(t)

	t.Run("missing hashes", func(t *testing.T) {
		w := postJSON(t, r, "/api/watermark/remove", map[string]any{"files": []string{"a.pdf"}})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("missing files", func(t *testing.T) {
		w := postJSON(t, r, "/api/watermark/remove", map[string]any{"hashes": []string{"aa"}})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})
}

func TestHandleRemove_ReportsPerFileOutcomes(t *testing.T) {
	r := testRouter(t)

	w := postJSON(t, r, "/api/watermark/remove", map[string]any{
		"files":  []string{"/nonexistent/file.pdf"},
		"hashes": []string{"aa"},
		"options": map[string]any{
			"suffix": "_clean",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Results []struct {
			File    string `json:"file"`
			Outcome string `json:"outcome"`
			Reason  string `json:"reason"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v, want one per file", resp.Results)
	}
	if resp.Results[0].Outcome != "failed" || resp.Results[0].Reason == "" {
		t.Fatalf("result = %+v, want failed with a reason", resp.Results[0])
	}
}
