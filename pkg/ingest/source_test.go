package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mastersleague/platform/pkg/common/models"
)

func drain(t *testing.T, it RawIterator) ([]models.RawEvent, error) {
	t.Helper()
	var events []models.RawEvent
	for {
		raw, ok, err := it.Next(context.Background())
		if err != nil {
			return events, err
		}
		if !ok {
			return events, nil
		}
		events = append(events, raw)
	}
}

func feedSource(t *testing.T, body string, status int) *httpSource {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return newHTTPSource(SourceConfig{Name: "feed", URL: server.URL})
}

func TestHTTPSourceStreamsArray(t *testing.T) {
	source := feedSource(t, `[
		{"source_id": "e-1", "title": "Brisbane Masters", "date": "2030-05-01", "state": "QLD"},
		{"source_id": "e-2", "title": "Newcastle Nines", "date": "2030-06-01", "state": "NSW"}
	]`, http.StatusOK)

	it, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	events, err := drain(t, it)
	if err != nil {
		t.Fatalf("traversal failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].SourceID != "e-1" || events[1].Title != "Newcastle Nines" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestHTTPSourceShapeMismatchIsPerRecord(t *testing.T) {
	source := feedSource(t, `[
		{"source_id": "e-1", "title": "Brisbane Masters", "date": "2030-05-01", "state": "QLD"},
		{"source_id": "e-2", "title": 42, "date": "2030-06-01", "state": "NSW"},
		{"source_id": "e-3", "title": "Cairns Carnival", "date": "2030-07-01", "state": "QLD"}
	]`, http.StatusOK)

	it, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	events, err := drain(t, it)
	if err != nil {
		t.Fatalf("a shape mismatch must not fail the traversal: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].ParseError == nil {
		t.Fatal("expected the malformed record to carry a parse error")
	}
	if events[0].ParseError != nil || events[2].ParseError != nil {
		t.Fatal("well-formed neighbours must not carry parse errors")
	}
}

func TestHTTPSourceNonArrayIsMalformed(t *testing.T) {
	source := feedSource(t, `{"events": []}`, http.StatusOK)

	_, err := source.Fetch(context.Background())
	var se *SourceError
	if !errors.As(err, &se) || se.Kind != SourceKindMalformed {
		t.Fatalf("expected malformed source error, got %v", err)
	}
}

func TestHTTPSourceBrokenSyntaxFailsTraversal(t *testing.T) {
	source := feedSource(t, `[{"source_id": "e-1", "title": "Brisbane Masters", "date": "2030-05-01", "state": "QLD"}, {"source_id": `, http.StatusOK)

	it, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	events, err := drain(t, it)
	var se *SourceError
	if !errors.As(err, &se) || se.Kind != SourceKindMalformed {
		t.Fatalf("expected malformed source error, got %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the leading record before the break, got %d", len(events))
	}
}

func TestHTTPSourceServerErrorIsUnavailable(t *testing.T) {
	source := feedSource(t, "upstream down", http.StatusInternalServerError)

	_, err := source.Fetch(context.Background())
	if !IsSourceUnavailable(err) {
		t.Fatalf("expected unavailable source error, got %v", err)
	}
}

func TestLoadSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - name: mastersleague
    url: https://events.example.com/api/events
    timeout_seconds: 20
    auth:
      token_url: https://auth.example.com/token
      client_id: sync
      client_secret: secret
  - name: touch-football
    url: https://touch.example.com/feed
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := LoadSources(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
	}
	if cfg.Sources[0].Auth == nil || cfg.Sources[0].Auth.ClientID != "sync" {
		t.Fatalf("auth not parsed: %+v", cfg.Sources[0])
	}
	if cfg.Sources[1].Auth != nil {
		t.Fatal("second source must not carry auth")
	}

	registry := NewRegistry(cfg)
	if _, ok := registry.Lookup("touch-football"); !ok {
		t.Fatal("registered source not resolvable")
	}
	if _, ok := registry.Lookup("unknown"); ok {
		t.Fatal("unknown source must not resolve")
	}
}

func TestLoadSourcesRejectsIncompleteEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte("sources:\n  - name: broken\n"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := LoadSources(path); err == nil {
		t.Fatal("expected an error for a source without a url")
	}
}
