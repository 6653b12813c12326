// Package policy loads the profiling policy: the field schema, scoring
// weights and thresholds, the placeholder denylist, merge precedence and
// extra regulatory jurisdictions.
package policy

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-profiler/internal/merge"
	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/query"
	"github.com/sells-group/company-profiler/internal/scorer"
)

// Policy bundles everything that shapes extraction, scoring and merging.
type Policy struct {
	Schema     model.Schema     `yaml:"schema"`
	Scoring    scorer.Config    `yaml:"scoring"`
	Precedence merge.Precedence `yaml:"precedence"`

	// Jurisdictions are checked before the built-in table.
	Jurisdictions []query.JurisdictionRule `yaml:"jurisdictions"`
}

// Default returns the built-in policy.
func Default() *Policy {
	return &Policy{
		Schema:     DefaultSchema(),
		Scoring:    scorer.DefaultConfig(),
		Precedence: merge.DefaultPrecedence(),
	}
}

// Load reads a policy from a YAML file. Sections the file omits keep their
// defaults.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a policy document with a top-level "policy" key.
func Parse(data []byte) (*Policy, error) {
	var wrapper struct {
		Policy struct {
			Schema     *model.Schema     `yaml:"schema"`
			Scoring    *scorer.Config    `yaml:"scoring"`
			Precedence *merge.Precedence `yaml:"precedence"`

			Jurisdictions []query.JurisdictionRule `yaml:"jurisdictions"`
		} `yaml:"policy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "policy: parse")
	}

	p := Default()
	if s := wrapper.Policy.Schema; s != nil && len(s.Fields) > 0 {
		p.Schema = *s
	}
	if sc := wrapper.Policy.Scoring; sc != nil {
		if sc.Weights != (scorer.Weights{}) {
			p.Scoring.Weights = sc.Weights
		}
		if len(sc.Thresholds) > 0 {
			p.Scoring.Thresholds = sc.Thresholds
		}
		if sc.Placeholders != nil {
			p.Scoring.Placeholders = sc.Placeholders
		}
	}
	if pr := wrapper.Policy.Precedence; pr != nil {
		if len(pr.Default) > 0 {
			p.Precedence.Default = pr.Default
		}
		for g, order := range pr.Groups {
			p.Precedence.Groups[g] = order
		}
		for f, order := range pr.Fields {
			p.Precedence.Fields[f] = order
		}
	}

	p.Jurisdictions = wrapper.Policy.Jurisdictions

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks every section.
func (p *Policy) Validate() error {
	if len(p.Schema.Fields) == 0 {
		return eris.New("policy: schema has no fields")
	}
	seen := make(map[string]bool, len(p.Schema.Fields))
	for _, f := range p.Schema.Fields {
		if f.Key == "" {
			return eris.New("policy: schema field with empty key")
		}
		if seen[f.Key] {
			return eris.Errorf("policy: duplicate schema field %q", f.Key)
		}
		seen[f.Key] = true
	}
	if err := scorer.ValidateConfig(p.Scoring); err != nil {
		return eris.Wrap(err, "policy: scoring")
	}
	if err := p.Precedence.Validate(); err != nil {
		return eris.Wrap(err, "policy: precedence")
	}
	for i, j := range p.Jurisdictions {
		if len(j.Match) == 0 || len(j.DocTerms) == 0 {
			return eris.Errorf("policy: jurisdiction %d needs match terms and doc_terms", i)
		}
		for _, m := range j.Match {
			if strings.TrimSpace(m) == "" {
				return eris.Errorf("policy: jurisdiction %d has a blank match term", i)
			}
		}
	}
	return nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
