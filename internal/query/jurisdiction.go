package query

import (
	"regexp"
	"strings"
)

// Jurisdiction describes where a company's filings live.
type Jurisdiction struct {
	Code      string   `yaml:"code"`
	Regulator string   `yaml:"regulator"`
	Sites     []string `yaml:"sites"`
	DocTerms  []string `yaml:"doc_terms"`
}

// JurisdictionRule selects a Jurisdiction when any Match term appears as a
// whole word in the location.
type JurisdictionRule struct {
	Match        []string `yaml:"match"`
	Jurisdiction `yaml:",inline"`
}

// usStateRe catches "City, ST" style US locations.
var usStateRe = regexp.MustCompile(`(?i),\s*(A[KLRZ]|C[AOT]|D[CE]|FL|GA|HI|I[ADLN]|K[SY]|LA|M[ADEINOST]|N[CDEHJMVY]|O[HKR]|PA|RI|S[CD]|T[NX]|UT|V[AT]|W[AIVY])\b`)

var usStateNames = []string{
	"alabama", "alaska", "arizona", "arkansas", "california", "colorado", "connecticut",
	"delaware", "florida", "georgia", "hawaii", "idaho", "illinois", "indiana", "iowa",
	"kansas", "kentucky", "louisiana", "maine", "maryland", "massachusetts", "michigan",
	"minnesota", "mississippi", "missouri", "montana", "nebraska", "nevada",
	"new hampshire", "new jersey", "new mexico", "new york", "north carolina",
	"north dakota", "ohio", "oklahoma", "oregon", "pennsylvania", "rhode island",
	"south carolina", "south dakota", "tennessee", "texas", "utah", "vermont",
	"virginia", "washington", "west virginia", "wisconsin", "wyoming",
}

var jurisdictions = []JurisdictionRule{
	{
		Match:        []string{"united states", "usa", "u.s.", " us"},
		Jurisdiction: Jurisdiction{Code: "US", Regulator: "SEC", Sites: []string{"sec.gov"},
			DocTerms: []string{"10-K", "10-Q", "8-K"}},
	},
	{
		Match:        []string{"united kingdom", "uk", "england", "scotland", "wales", "london"},
		Jurisdiction: Jurisdiction{Code: "GB", Regulator: "Companies House", Sites: []string{"find-and-update.company-information.service.gov.uk"},
			DocTerms: []string{`"annual report"`, `"confirmation statement"`}},
	},
	{
		Match:        []string{"canada", "toronto", "vancouver", "montreal"},
		Jurisdiction: Jurisdiction{Code: "CA", Regulator: "SEDAR+", Sites: []string{"sedarplus.ca"},
			DocTerms: []string{`"annual information form"`, `"annual report"`}},
	},
	{
		Match:        []string{"india", "mumbai", "bangalore", "bengaluru", "delhi"},
		Jurisdiction: Jurisdiction{Code: "IN", Regulator: "MCA", Sites: []string{"mca.gov.in", "bseindia.com", "nseindia.com"},
			DocTerms: []string{`"annual report"`}},
	},
	{
		Match:        []string{"australia", "sydney", "melbourne"},
		Jurisdiction: Jurisdiction{Code: "AU", Regulator: "ASIC", Sites: []string{"asic.gov.au", "asx.com.au"},
			DocTerms: []string{`"annual report"`}},
	},
	{
		Match:        []string{"singapore"},
		Jurisdiction: Jurisdiction{Code: "SG", Regulator: "ACRA", Sites: []string{"acra.gov.sg", "sgx.com"},
			DocTerms: []string{`"annual report"`}},
	},
	{
		Match:        []string{"japan", "tokyo", "osaka"},
		Jurisdiction: Jurisdiction{Code: "JP", Regulator: "FSA EDINET", Sites: []string{"disclosure2.edinet-fsa.go.jp"},
			DocTerms: []string{`"annual securities report"`}},
	},
	{
		Match:        []string{"china", "beijing", "shanghai", "shenzhen"},
		Jurisdiction: Jurisdiction{Code: "CN", Regulator: "CSRC", Sites: []string{"csrc.gov.cn", "sse.com.cn", "szse.cn"},
			DocTerms: []string{`"annual report"`}},
	},
	{
		Match:        []string{"germany", "deutschland", "berlin", "munich", "frankfurt"},
		Jurisdiction: Jurisdiction{Code: "DE", Regulator: "Unternehmensregister", Sites: []string{"unternehmensregister.de", "handelsregister.de"},
			DocTerms: []string{`"Jahresabschluss"`, `"annual report"`}},
	},
	{
		Match:        []string{"france", "paris", "lyon"},
		Jurisdiction: Jurisdiction{Code: "FR", Regulator: "AMF", Sites: []string{"amf-france.org", "infogreffe.fr"},
			DocTerms: []string{`"document d'enregistrement universel"`, `"annual report"`}},
	},
}

// genericJurisdiction is used when the location is unknown or unmatched.
var genericJurisdiction = Jurisdiction{
	Code:     "",
	DocTerms: []string{`"annual report"`, `"financial statements"`, `"investor relations"`},
}

// ResolveJurisdiction maps a free-form location to a jurisdiction. An empty
// location means US; an unrecognized one yields the generic fallback.
func ResolveJurisdiction(location string) Jurisdiction {
	return resolve(location, nil)
}

// DefaultJurisdictions returns a copy of the built-in rule table.
func DefaultJurisdictions() []JurisdictionRule {
	return append([]JurisdictionRule(nil), jurisdictions...)
}

// resolve checks extra rules first, then the built-in table, then US state
// abbreviations and names.
func resolve(location string, extra []JurisdictionRule) Jurisdiction {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return jurisdictions[0].Jurisdiction
	}
	padded := " " + loc + " "
	for _, table := range [][]JurisdictionRule{extra, jurisdictions} {
		for _, rule := range table {
			for _, m := range rule.Match {
				if containsWord(padded, strings.ToLower(m)) {
					return rule.Jurisdiction
				}
			}
		}
	}
	if usStateRe.MatchString(location) {
		return jurisdictions[0].Jurisdiction
	}
	for _, st := range usStateNames {
		if containsWord(padded, st) {
			return jurisdictions[0].Jurisdiction
		}
	}
	return genericJurisdiction
}

// containsWord matches needle on word boundaries inside a space-padded,
// lowercased haystack.
func containsWord(padded, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	idx := 0
	for {
		i := strings.Index(padded[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		if !isWordChar(padded[start-1]) && (end >= len(padded) || !isWordChar(padded[end])) {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
