package main

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(filepath.Join(t.TempDir(), "missing.yaml"), t.TempDir(), 11)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func TestHealthHandler(t *testing.T) {
	app := newTestApp(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/health", nil)

	handler := healthHandlerFor(app)
	handler(w, r)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected ok status in body, got %s", w.Body.String())
	}
}

func TestViewerSVGHandlerRendersEvenWithEmptyMap(t *testing.T) {
	app := newTestApp(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/viewer.svg", nil)

	handler := viewerSVGHandlerFor(app)
	handler(w, r)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<svg") {
		t.Fatalf("expected svg body, got %s", w.Body.String())
	}
}

func TestSaveHandlerWritesArtifacts(t *testing.T) {
	app := newTestApp(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/save", nil)

	handler := saveHandlerFor(app)
	handler(w, r)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "saved\n" {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
}
