package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stocknotify/internal/registry"
	"stocknotify/internal/store"
	"stocknotify/internal/watch"
	logx "stocknotify/pkg/logx"
)

func testService(t *testing.T, targetsJSON string) *Service {
	t.Helper()
	kv := store.NewMem()
	if targetsJSON != "" {
		if err := kv.Put(context.Background(), "targets:active", targetsJSON); err != nil {
			t.Fatal(err)
		}
	}
	return New(Config{}, registry.New(kv, logx.Nop()), logx.Nop())
}

func TestHealthRoute(t *testing.T) {
	t.Parallel()

	s := testService(t, "")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestTargetsRoute(t *testing.T) {
	t.Parallel()

	s := testService(t, `[{"tenant_id":"t1","company_name":"Acme","pr_url":"https://acme.example/feed.xml","enabled":true}]`)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/targets", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var got []watch.Target
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if len(got) != 1 || got[0].TenantID != "t1" || got[0].CompanyName != "Acme" {
		t.Fatalf("targets = %+v", got)
	}
}

func TestTargetsRouteEmpty(t *testing.T) {
	t.Parallel()

	s := testService(t, "")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/targets", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("body = %q, want empty array", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	s := testService(t, "")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
