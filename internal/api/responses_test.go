package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// newRequestWithChiParam builds a request with a chi URL param injected into context.
func newRequestWithChiParam(param, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(param, value)
	req := httptest.NewRequest("GET", "/", nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// ── ParsePagination ──────────────────────────────────────────────────

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", "", 50, 0, false},
		{"valid_custom", "limit=25&offset=10", 25, 10, false},
		{"zero_limit_rejected", "limit=0", 0, 0, true},
		{"negative_offset_rejected", "offset=-5", 0, 0, true},
		{"non_numeric_rejected", "limit=abc", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)
			p, err := ParsePagination(req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", p.Limit, tt.wantLimit)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", p.Offset, tt.wantOffset)
			}
		})
	}
}

// ── QueryInt ─────────────────────────────────────────────────────────

func TestQueryInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?n=42", nil)
		v, ok := QueryInt(req, "n")
		if !ok || v != 42 {
			t.Errorf("got (%d, %v), want (42, true)", v, ok)
		}
	})
	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		_, ok := QueryInt(req, "n")
		if ok {
			t.Error("expected ok=false for missing param")
		}
	})
	t.Run("non_numeric", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?n=abc", nil)
		_, ok := QueryInt(req, "n")
		if ok {
			t.Error("expected ok=false for non-numeric param")
		}
	})
}

// ── QueryInt64 ───────────────────────────────────────────────────────

func TestQueryInt64(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?n=9999999999", nil)
		v, ok := QueryInt64(req, "n")
		if !ok || v != 9999999999 {
			t.Errorf("got (%d, %v), want (9999999999, true)", v, ok)
		}
	})
	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		_, ok := QueryInt64(req, "n")
		if ok {
			t.Error("expected ok=false")
		}
	})
}

// ── QueryBool ────────────────────────────────────────────────────────

func TestQueryBool(t *testing.T) {
	t.Run("true", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?flag=true", nil)
		v, ok := QueryBool(req, "flag")
		if !ok || !v {
			t.Errorf("got (%v, %v), want (true, true)", v, ok)
		}
	})
	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		_, ok := QueryBool(req, "flag")
		if ok {
			t.Error("expected ok=false")
		}
	})
	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?flag=maybe", nil)
		_, ok := QueryBool(req, "flag")
		if ok {
			t.Error("expected ok=false")
		}
	})
}

// ── QueryString / QueryStringList ────────────────────────────────────

func TestQueryString(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?q=hello", nil)
		v, ok := QueryString(req, "q")
		if !ok || v != "hello" {
			t.Errorf("got (%q, %v), want (\"hello\", true)", v, ok)
		}
	})
	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		_, ok := QueryString(req, "q")
		if ok {
			t.Error("expected ok=false")
		}
	})
}

func TestQueryStringList(t *testing.T) {
	t.Run("missing_returns_nil", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		if got := QueryStringList(req, "metrics"); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
	t.Run("multiple_values", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?metrics=a,b,c", nil)
		got := QueryStringList(req, "metrics")
		if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("got %v, want [a b c]", got)
		}
	})
}

// ── QueryTime ────────────────────────────────────────────────────────

func TestQueryTime(t *testing.T) {
	t.Run("valid_rfc3339", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?t=2024-01-15T10:30:00Z", nil)
		v, ok := QueryTime(req, "t")
		if !ok {
			t.Fatal("expected ok=true")
		}
		want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
		if !v.Equal(want) {
			t.Errorf("got %v, want %v", v, want)
		}
	})
	t.Run("valid_epoch_millis", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?t=1705314600000", nil)
		v, ok := QueryTime(req, "t")
		if !ok {
			t.Fatal("expected ok=true")
		}
		want := time.UnixMilli(1705314600000)
		if !v.Equal(want) {
			t.Errorf("got %v, want %v", v, want)
		}
	})
	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		_, ok := QueryTime(req, "t")
		if ok {
			t.Error("expected ok=false")
		}
	})
	t.Run("invalid_format", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?t=not-a-time", nil)
		_, ok := QueryTime(req, "t")
		if ok {
			t.Error("expected ok=false")
		}
	})
}

// ── PathInt / PathInt64 ──────────────────────────────────────────────

func TestPathInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := newRequestWithChiParam("id", "42")
		v, err := PathInt(req, "id")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 42 {
			t.Errorf("got %d, want 42", v)
		}
	})
	t.Run("missing", func(t *testing.T) {
		rctx := chi.NewRouteContext()
		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		_, err := PathInt(req, "id")
		if err == nil {
			t.Error("expected error for missing param")
		}
	})
	t.Run("non_numeric", func(t *testing.T) {
		req := newRequestWithChiParam("id", "abc")
		_, err := PathInt(req, "id")
		if err == nil {
			t.Error("expected error for non-numeric param")
		}
	})
}

func TestPathInt64(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := newRequestWithChiParam("id", "9999999999")
		v, err := PathInt64(req, "id")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 9999999999 {
			t.Errorf("got %d, want 9999999999", v)
		}
	})
	t.Run("missing", func(t *testing.T) {
		rctx := chi.NewRouteContext()
		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		_, err := PathInt64(req, "id")
		if err == nil {
			t.Error("expected error for missing param")
		}
	})
}

// ── WriteJSON / WriteError / WriteErrorWithCode / WriteErrorDetail ───

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"msg": "ok"})

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body["msg"] != "ok" {
		t.Errorf("body = %v, want msg=ok", body)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "bad input")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body.Error != "bad input" {
		t.Errorf("Error = %q, want %q", body.Error, "bad input")
	}
}

func TestWriteErrorWithCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorWithCode(rec, http.StatusForbidden, ErrForbidden, "nope")

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body.Code != ErrForbidden {
		t.Errorf("Code = %q, want %q", body.Code, ErrForbidden)
	}
}

// ── DecodeJSON ───────────────────────────────────────────────────────

func TestDecodeJSON(t *testing.T) {
	t.Run("valid_body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"test"}`))
		var dst struct {
			Name string `json:"name"`
		}
		if err := DecodeJSON(req, &dst); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dst.Name != "test" {
			t.Errorf("Name = %q, want %q", dst.Name, "test")
		}
	})
	t.Run("nil_body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", nil)
		req.Body = nil
		var dst struct{}
		if err := DecodeJSON(req, &dst); err == nil {
			t.Error("expected error for nil body")
		}
	})
	t.Run("malformed_json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{bad`))
		var dst struct{}
		if err := DecodeJSON(req, &dst); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})
}

// ── WriteErrorDetail ─────────────────────────────────────────────────

func TestWriteErrorDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorDetail(rec, http.StatusUnprocessableEntity, "validation failed", "name is required")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body.Error != "validation failed" {
		t.Errorf("Error = %q, want %q", body.Error, "validation failed")
	}
	if body.Detail != "name is required" {
		t.Errorf("Detail = %q, want %q", body.Detail, "name is required")
	}
}
