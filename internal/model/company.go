package model

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CompanyIdentity is the input describing a company to profile. It is a
// value type; construct it with NewCompanyIdentity and pass it by value.
type CompanyIdentity struct {
	Name     string `json:"company_name"`
	Ticker   string `json:"ticker,omitempty"`
	Website  string `json:"website,omitempty"`
	Location string `json:"location,omitempty"`
}

// NewCompanyIdentity trims every field and validates the result.
func NewCompanyIdentity(name, ticker, website, location string) (CompanyIdentity, error) {
	id := CompanyIdentity{
		Name:     strings.TrimSpace(name),
		Ticker:   strings.ToUpper(strings.TrimSpace(ticker)),
		Website:  strings.TrimSpace(website),
		Location: strings.TrimSpace(location),
	}
	if err := id.Validate(); err != nil {
		return CompanyIdentity{}, err
	}
	return id, nil
}

// Validate reports an InputValidationError when the identity cannot be
// profiled.
func (c CompanyIdentity) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &InputValidationError{Field: "company_name", Reason: "must not be empty"}
	}
	if CompanySlug(c.Name) == "" {
		return &InputValidationError{Field: "company_name", Reason: "must contain at least one letter or digit"}
	}
	if c.Website != "" && c.Domain() == "" {
		return &InputValidationError{Field: "website", Reason: "not a valid host or URL"}
	}
	return nil
}

// CompanyID returns the stable identifier derived from the company name.
func (c CompanyIdentity) CompanyID() string {
	return CompanySlug(c.Name)
}

// Domain returns the bare lowercase host of Website without a "www." prefix,
// or "" when no website is known.
func (c CompanyIdentity) Domain() string {
	raw := strings.TrimSpace(c.Website)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") {
		return ""
	}
	return host
}

// CompanySlug lowercases name, folds accents, and collapses every run of
// whitespace or punctuation into a single underscore.
func CompanySlug(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		switch {
		case r == '.' || r == ',' || r == '\'':
			// Dropped outright so "Acme Corp." and "Acme Corp" match.
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// ParseIdentity is a convenience used by request decoders.
func ParseIdentity(fields map[string]string) (CompanyIdentity, error) {
	id, err := NewCompanyIdentity(fields["company_name"], fields["ticker"], fields["website"], fields["location"])
	if err != nil {
		return CompanyIdentity{}, eris.Wrap(err, "model: parse identity")
	}
	return id, nil
}
