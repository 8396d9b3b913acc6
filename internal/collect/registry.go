package collect

import (
	"embed"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml config/rules.yaml
var configFS embed.FS

type sourcesDoc struct {
	Sources []Source `yaml:"sources"`
}

// SiteRule carries the scraping hints applied to a source: which paths to
// harvest, how to build search URLs and which CSS selectors to try.
type SiteRule struct {
	Paths           []string `yaml:"paths,omitempty"`
	SearchTemplates []string `yaml:"search_templates,omitempty"`
	Cards           []string `yaml:"card_selectors,omitempty"`
	Names           []string `yaml:"name_selectors,omitempty"`
	Prices          []string `yaml:"price_selectors,omitempty"`
	MaxItems        int      `yaml:"max_items,omitempty"`
}

type rulesDoc struct {
	Defaults SiteRule            `yaml:"defaults"`
	Domains  map[string]SiteRule `yaml:"domains,omitempty"`
}

// Registry holds the configured sources plus the site rules used to fill
// in whatever a source leaves unspecified.
type Registry struct {
	sources  []Source
	defaults SiteRule
	domains  map[string]SiteRule
}

// LoadRegistry reads the embedded sources.yaml and rules.yaml, or the
// override files when paths are given. Environment variables inside the
// YAML (e.g. ${COTADOR_API_KEY}) are expanded before parsing.
func LoadRegistry(sourcesPath, rulesPath string) (*Registry, error) {
	sdata, err := readConfig("config/sources.yaml", sourcesPath)
	if err != nil {
		return nil, err
	}
	rdata, err := readConfig("config/rules.yaml", rulesPath)
	if err != nil {
		return nil, err
	}

	var sdoc sourcesDoc
	if err := yaml.Unmarshal(sdata, &sdoc); err != nil {
		return nil, err
	}
	var rdoc rulesDoc
	if err := yaml.Unmarshal(rdata, &rdoc); err != nil {
		return nil, err
	}

	return NewRegistry(sdoc.Sources, rdoc.Defaults, rdoc.Domains)
}

// NewRegistry validates every source and fills in defaults. A duplicate
// source name or an invalid source is a *ConfigError.
func NewRegistry(sources []Source, defaults SiteRule, domains map[string]SiteRule) (*Registry, error) {
	r := &Registry{defaults: defaults, domains: domains}
	seen := make(map[string]bool)
	for _, src := range sources {
		applied, err := r.Apply(src)
		if err != nil {
			return nil, err
		}
		if seen[applied.Name] {
			return nil, &ConfigError{Source: applied.Name, Field: "name", Reason: "duplicate source name"}
		}
		seen[applied.Name] = true
		r.sources = append(r.sources, applied)
	}
	return r, nil
}

func readConfig(embedded, override string) ([]byte, error) {
	var data []byte
	var err error
	if override != "" {
		data, err = os.ReadFile(override)
	} else {
		data, err = configFS.ReadFile(embedded)
	}
	if err != nil {
		return nil, err
	}
	return []byte(os.ExpandEnv(string(data))), nil
}

// Apply validates a single source and merges in the site rules for its
// domain. Sources coming from the HTTP API pass through here too, so a
// request body can never smuggle in an unchecked source.
func (r *Registry) Apply(src Source) (Source, error) {
	src.Name = FoldText(src.Name)
	if src.Name == "" {
		return Source{}, &ConfigError{Source: src.BaseURL, Field: "name", Reason: "missing"}
	}

	if src.Kind == "" {
		src.Kind = KindStatic
	}
	switch src.Kind {
	case KindStatic, KindHeadless, KindMock:
	default:
		return Source{}, &ConfigError{Source: src.Name, Field: "kind", Reason: "unknown kind " + src.Kind}
	}

	src.BaseURL = strings.TrimRight(strings.TrimSpace(src.BaseURL), "/")
	rule := r.defaults
	if src.BaseURL == "" {
		if src.Kind != KindMock {
			return Source{}, &ConfigError{Source: src.Name, Field: "base_url", Reason: "missing"}
		}
	} else {
		u, err := url.Parse(src.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Source{}, &ConfigError{Source: src.Name, Field: "base_url", Reason: "not an absolute http(s) URL"}
		}
		rule = r.ruleFor(u.Hostname())
	}

	if len(src.Paths) == 0 {
		src.Paths = rule.Paths
	}
	if len(src.SearchTemplates) == 0 {
		src.SearchTemplates = rule.SearchTemplates
	}
	if len(src.Selectors.Cards) == 0 {
		src.Selectors.Cards = rule.Cards
	}
	if len(src.Selectors.Names) == 0 {
		src.Selectors.Names = rule.Names
	}
	if len(src.Selectors.Prices) == 0 {
		src.Selectors.Prices = rule.Prices
	}
	if src.MaxItems <= 0 {
		src.MaxItems = rule.MaxItems
	}

	return src, nil
}

// ruleFor merges the default rule with the most specific matching domain
// rule. "www.tauste.com.br" matches a "tauste.com.br" entry.
func (r *Registry) ruleFor(host string) SiteRule {
	rule := r.defaults
	best := ""
	for domain := range r.domains {
		if (host == domain || strings.HasSuffix(host, "."+domain)) && len(domain) > len(best) {
			best = domain
		}
	}
	if best != "" {
		rule = mergeRule(rule, r.domains[best])
	}
	return rule
}

func mergeRule(base, over SiteRule) SiteRule {
	if len(over.Paths) > 0 {
		base.Paths = over.Paths
	}
	if len(over.SearchTemplates) > 0 {
		base.SearchTemplates = over.SearchTemplates
	}
	if len(over.Cards) > 0 {
		base.Cards = over.Cards
	}
	if len(over.Names) > 0 {
		base.Names = over.Names
	}
	if len(over.Prices) > 0 {
		base.Prices = over.Prices
	}
	if over.MaxItems > 0 {
		base.MaxItems = over.MaxItems
	}
	return base
}

// Sources returns the configured sources in declaration order.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Source looks up a configured source by its folded name.
func (r *Registry) Source(name string) (Source, bool) {
	name = FoldText(name)
	for _, src := range r.sources {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}

// SearchURLs expands a source's search templates for one term. The term is
// query-escaped and substituted for every "{q}" marker. Relative templates
// are joined onto the base URL; absolute ones pass through untouched.
func SearchURLs(src Source, term string) []string {
	term = strings.TrimSpace(term)
	if term == "" || len(src.SearchTemplates) == 0 {
		return nil
	}
	escaped := url.QueryEscape(term)
	urls := make([]string, 0, len(src.SearchTemplates))
	for _, tmpl := range src.SearchTemplates {
		filled := strings.ReplaceAll(tmpl, "{q}", escaped)
		if strings.HasPrefix(filled, "http://") || strings.HasPrefix(filled, "https://") {
			urls = append(urls, filled)
			continue
		}
		urls = append(urls, joinURL(src.BaseURL, filled))
	}
	return urls
}
