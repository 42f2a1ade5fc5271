package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mastersleague/platform/pkg/common/models"
	"golang.org/x/oauth2/clientcredentials"
	"gopkg.in/yaml.v3"
)

// RawIterator walks a finite sequence of raw events. Traversal may perform
// I/O; ok=false signals exhaustion.
type RawIterator interface {
	Next(ctx context.Context) (raw models.RawEvent, ok bool, err error)
}

// Source fetches the current set of events advertised by one named external
// source. Implementations must be stateless per call and honor the context
// deadline.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (RawIterator, error)
}

// SourceAuth configures OAuth2 client-credentials access to a source API.
type SourceAuth struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

type SourceConfig struct {
	Name           string      `yaml:"name"`
	URL            string      `yaml:"url"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	Auth           *SourceAuth `yaml:"auth"`
}

type SourcesConfig struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSources reads the source registry file.
func LoadSources(path string) (SourcesConfig, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return SourcesConfig{}, err
	}

	var cfg SourcesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return SourcesConfig{}, err
	}
	if len(cfg.Sources) == 0 {
		return SourcesConfig{}, errors.New("no sources configured")
	}
	for _, s := range cfg.Sources {
		if s.Name == "" || s.URL == "" {
			return SourcesConfig{}, errors.New("source entries require name and url")
		}
	}
	return cfg, nil
}

// Registry resolves registered source names to adapters.
type Registry struct {
	sources map[string]Source
}

func NewRegistry(cfg SourcesConfig) *Registry {
	reg := &Registry{sources: make(map[string]Source, len(cfg.Sources))}
	for _, sc := range cfg.Sources {
		reg.sources[sc.Name] = newHTTPSource(sc)
	}
	return reg
}

// Register installs a source, replacing any previous adapter of the same
// name. Tests install static sources through it.
func (r *Registry) Register(s Source) {
	if r.sources == nil {
		r.sources = make(map[string]Source)
	}
	r.sources[s.Name()] = s
}

func (r *Registry) Lookup(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

type httpSource struct {
	cfg  SourceConfig
	base *http.Client
}

func newHTTPSource(cfg SourceConfig) *httpSource {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &httpSource{cfg: cfg, base: &http.Client{Timeout: timeout}}
}

func (s *httpSource) Name() string { return s.cfg.Name }

func (s *httpSource) client(ctx context.Context) *http.Client {
	if s.cfg.Auth == nil {
		return s.base
	}
	cc := clientcredentials.Config{
		TokenURL:     s.cfg.Auth.TokenURL,
		ClientID:     s.cfg.Auth.ClientID,
		ClientSecret: s.cfg.Auth.ClientSecret,
		Scopes:       s.cfg.Auth.Scopes,
	}
	client := cc.Client(ctx)
	client.Timeout = s.base.Timeout
	return client
}

// Fetch opens the source feed and returns an iterator that streams the JSON
// array one element at a time.
func (s *httpSource) Fetch(ctx context.Context) (RawIterator, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, newSourceError(SourceKindUnavailable, s.cfg.Name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client(ctx).Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newSourceError(SourceKindTimeout, s.cfg.Name, err)
		}
		return nil, newSourceError(SourceKindUnavailable, s.cfg.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, newSourceError(SourceKindUnavailable, s.cfg.Name,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	dec := json.NewDecoder(resp.Body)
	tok, err := dec.Token()
	if err != nil {
		resp.Body.Close()
		return nil, newSourceError(SourceKindMalformed, s.cfg.Name, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		resp.Body.Close()
		return nil, newSourceError(SourceKindMalformed, s.cfg.Name,
			fmt.Errorf("expected JSON array, got %v", tok))
	}

	return &streamIterator{source: s.cfg.Name, body: resp.Body, dec: dec}, nil
}

type streamIterator struct {
	source string
	body   io.ReadCloser
	dec    *json.Decoder
	done   bool
}

func (it *streamIterator) Next(ctx context.Context) (models.RawEvent, bool, error) {
	if it.done {
		return models.RawEvent{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		it.close()
		if errors.Is(err, context.DeadlineExceeded) {
			return models.RawEvent{}, false, newSourceError(SourceKindTimeout, it.source, err)
		}
		return models.RawEvent{}, false, newSourceError(SourceKindUnavailable, it.source, err)
	}
	if !it.dec.More() {
		it.close()
		return models.RawEvent{}, false, nil
	}

	// Decode the element as raw JSON first; a shape mismatch is a per-record
	// parse error, only broken syntax fails the traversal.
	var elem json.RawMessage
	if err := it.dec.Decode(&elem); err != nil {
		it.close()
		return models.RawEvent{}, false, newSourceError(SourceKindMalformed, it.source, err)
	}

	var raw models.RawEvent
	if err := json.Unmarshal(elem, &raw); err != nil {
		return models.RawEvent{ParseError: err}, true, nil
	}
	return raw, true, nil
}

func (it *streamIterator) close() {
	if !it.done {
		it.done = true
		it.body.Close()
	}
}

// StaticSource serves a canned sequence of raw events. It stands in for an
// HTTP source in tests and local development.
type StaticSource struct {
	SourceName string
	Events     []models.RawEvent
	Err        error
}

func (s *StaticSource) Name() string { return s.SourceName }

func (s *StaticSource) Fetch(ctx context.Context) (RawIterator, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &sliceIterator{events: s.Events}, nil
}

type sliceIterator struct {
	events []models.RawEvent
	pos    int
}

func (it *sliceIterator) Next(ctx context.Context) (models.RawEvent, bool, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.RawEvent{}, false, newSourceError(SourceKindTimeout, "static", err)
		}
		return models.RawEvent{}, false, err
	}
	if it.pos >= len(it.events) {
		return models.RawEvent{}, false, nil
	}
	raw := it.events[it.pos]
	it.pos++
	return raw, true, nil
}
