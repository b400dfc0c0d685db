package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildMux(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mux := BuildMux(ctx, Config{
		Root:     dir,
		Autosave: filepath.Join(dir, "autosave"),
		Prefix:   "cw",
		Endpoint: "/omc/xepr/",
	})
	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w
	}

	w := do(http.MethodGet, "/endpoints", "")
	graph := map[string][]string{}
	if err := json.NewDecoder(w.Body).Decode(&graph); err != nil {
		t.Fatal(err)
	}
	for _, stem := range []string{"/archive", "/omc/xepr"} {
		if len(graph[stem]) == 0 {
			t.Errorf("expected routes under %s", stem)
		}
	}

	if w := do(http.MethodGet, "/archive/list", ""); w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected an empty listing, got %d %s", w.Code, w.Body.String())
	}

	if w := do(http.MethodPost, "/omc/xepr/lock", `{"bool": true}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if w := do(http.MethodPost, "/omc/xepr/load", `{"str": "x"}`); w.Code != http.StatusLocked {
		t.Errorf("expected 423 while locked, got %d", w.Code)
	}
	if w := do(http.MethodGet, "/omc/xepr/autosave/prefix", ""); w.Code != http.StatusOK {
		t.Errorf("expected reads to pass the lock, got %d", w.Code)
	}
	do(http.MethodPost, "/omc/xepr/lock", `{"bool": false}`)
	if w := do(http.MethodPost, "/omc/xepr/load", `{"str": "x"}`); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing dataset, got %d", w.Code)
	}
}

func TestDuration(t *testing.T) {
	if d := duration("", 5); d != 5 {
		t.Errorf("expected the default, got %v", d)
	}
	if d := duration("1m", 5); d.Seconds() != 60 {
		t.Errorf("expected 1m got %v", d)
	}
	if d := duration("soon", 5); d != 5 {
		t.Errorf("expected the default for a bad duration, got %v", d)
	}
}
