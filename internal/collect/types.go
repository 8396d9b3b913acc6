package collect

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Source kinds select the collection strategy once at load time.
const (
	KindStatic   = "static"
	KindHeadless = "headless"
	KindMock     = "mock"
)

// SelectorSet holds the CSS selectors used to extract product candidates
// from a page. Each list is tried in order.
type SelectorSet struct {
	Cards  []string `yaml:"card_selectors" json:"card_selectors,omitempty"`
	Names  []string `yaml:"name_selectors" json:"name_selectors,omitempty"`
	Prices []string `yaml:"price_selectors" json:"price_selectors,omitempty"`
}

// Source is one configured market endpoint: where to fetch, how to fetch
// (kind), and how to pull candidates out of the markup.
type Source struct {
	Name            string      `yaml:"name" json:"name"`
	BaseURL         string      `yaml:"base_url" json:"base_url"`
	Kind            string      `yaml:"kind" json:"kind"`
	SearchTemplates []string    `yaml:"search_templates" json:"search_templates,omitempty"`
	Paths           []string    `yaml:"paths" json:"paths,omitempty"`
	Selectors       SelectorSet `yaml:"selectors" json:"selectors,omitempty"`
	MaxItems        int         `yaml:"max_items" json:"max_items,omitempty"`
}

// Candidate is one (label, price) pair extracted from a source.
type Candidate struct {
	Label string
	Price float64
}

// Collector extracts price candidates from a source. An empty term harvests
// the source's configured pages; a non-empty term runs a templated search.
// Collection failures (network, timeout, selector mismatch) degrade to an
// empty result; only configuration problems surface as errors.
type Collector interface {
	FetchCandidates(ctx context.Context, src Source, term string) ([]Candidate, error)
}

// ConfigError reports a malformed source configuration. It blocks the
// affected source only, never the whole run.
type ConfigError struct {
	Source string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("config: source %q: %s: %s", e.Source, e.Field, e.Reason)
}

// Set maps source kinds to collector implementations. Selection happens once
// per source at load time, not per call.
type Set struct {
	mu         sync.RWMutex
	collectors map[string]Collector
}

func NewSet() *Set {
	return &Set{collectors: make(map[string]Collector)}
}

// Register adds or replaces the collector for a kind.
func (s *Set) Register(kind string, c Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectors[kind] = c
}

// Get returns the collector registered for a kind.
func (s *Set) Get(kind string) (Collector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collectors[kind]
	if !ok {
		return nil, &ConfigError{Field: "kind", Reason: fmt.Sprintf("no collector registered for %q", kind)}
	}
	return c, nil
}

// Kinds returns the registered kinds, sorted.
func (s *Set) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]string, 0, len(s.collectors))
	for k := range s.collectors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
