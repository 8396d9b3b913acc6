package quote

import (
	"embed"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/economizaja/cotador/internal/collect"
	"github.com/economizaja/cotador/internal/models"
)

//go:embed config/synonyms.yaml
var synonymFS embed.FS

type synonymsDoc struct {
	Synonyms map[string]string `yaml:"synonyms"`
}

// Normalizer turns raw shopping-list entries into canonical lookup keys.
// "Feijão", "feijao" and "FEIJÃO " all land on the same key, so prices
// stored under one spelling are found under any other.
type Normalizer struct {
	synonyms map[string]string
}

// LoadNormalizer reads the embedded synonyms.yaml, or the override file
// when a path is given.
func LoadNormalizer(path string) (*Normalizer, error) {
	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = synonymFS.ReadFile("config/synonyms.yaml")
	}
	if err != nil {
		return nil, err
	}

	var doc synonymsDoc
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return nil, err
	}
	return NewNormalizer(doc.Synonyms), nil
}

// NewNormalizer builds a normalizer over a synonym table. Table keys are
// folded, so "feijão" and "feijao" entries collide on purpose.
func NewNormalizer(synonyms map[string]string) *Normalizer {
	folded := make(map[string]string, len(synonyms))
	for term, canonical := range synonyms {
		key := foldKey(term)
		canonical = collect.CleanText(strings.ToLower(canonical))
		if key == "" || canonical == "" {
			continue
		}
		folded[key] = canonical
	}
	return &Normalizer{synonyms: folded}
}

// Normalize maps one raw entry to an Item. The candidate keys are ordered
// most specific first: the canonical synonym expansion, then the cleaned
// raw term with accents kept, then the fully folded term. Normalizing an
// already normalized key returns the same key.
func (n *Normalizer) Normalize(raw string) models.Item {
	cleaned := cleanTerm(raw)
	lookup := foldKey(raw)

	canonical, ok := n.synonyms[lookup]
	if !ok {
		canonical = lookup
	}

	var keys []string
	for _, k := range []string{canonical, cleaned, lookup} {
		if k != "" {
			keys = collect.AppendUnique(keys, k)
		}
	}

	return models.Item{
		Raw:           raw,
		NormalizedKey: foldKey(canonical),
		CandidateKeys: keys,
	}
}

// foldKey lowercases, strips punctuation and accents, and collapses
// whitespace. This is the storage and matching form of a term.
func foldKey(s string) string {
	return collect.FoldText(stripPunct(s))
}

// cleanTerm is foldKey without the accent removal.
func cleanTerm(s string) string {
	return collect.CleanText(strings.ToLower(stripPunct(s)))
}

func stripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
}
