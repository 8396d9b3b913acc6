package collect

import (
	"context"
	"sort"
	"strings"
)

// MockCollector serves a fixed catalog without touching the network. It
// backs sources of kind "mock", used in tests and in demo deployments
// where the real sites are unreachable.
type MockCollector struct {
	Catalog map[string]float64
}

// DefaultMockCatalog returns the staple basket used by the bundled mock
// source.
func DefaultMockCatalog() map[string]float64 {
	return map[string]float64{
		"arroz 5kg tipo 1":     27.90,
		"feijão carioca 1kg":   9.10,
		"óleo de soja 900ml":   7.55,
		"café 500g":            15.10,
		"açúcar 1kg":           5.40,
		"farinha de trigo 1kg": 5.05,
		"leite longa vida 1l":  4.10,
	}
}

// NewMockCollector builds a collector over the default catalog.
func NewMockCollector() *MockCollector {
	return &MockCollector{Catalog: DefaultMockCatalog()}
}

// FetchCandidates returns the whole catalog for an empty term, or the
// entries whose folded label contains the folded term. Iteration is
// sorted so results are stable.
func (c *MockCollector) FetchCandidates(_ context.Context, _ Source, term string) ([]Candidate, error) {
	labels := make([]string, 0, len(c.Catalog))
	for label := range c.Catalog {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	folded := FoldText(strings.TrimSpace(term))

	var found []Candidate
	for _, label := range labels {
		if folded != "" && !strings.Contains(FoldText(label), folded) {
			continue
		}
		found = append(found, Candidate{Label: label, Price: c.Catalog[label]})
	}
	return found, nil
}
