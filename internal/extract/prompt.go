package extract

import (
	"fmt"
	"strings"

	"github.com/sells-group/company-profiler/internal/model"
)

var phaseGuidance = map[model.Phase]string{
	model.PhaseRegulatory: "The documents come from regulatory filings and registries. " +
		"Prefer figures from the most recent annual filing and include the fiscal year with financial values.",
	model.PhaseGeneral: "The company may be private. Use business directories, news coverage and the " +
		"company's own pages. Prefer the most recent figures and say when a value is an estimate.",
	model.PhaseWebsite: "The documents come mostly from the company's own website. Focus on leadership: " +
		"current executives with full names and exact titles, founders and board members.",
}

func systemPrompt(schema model.Schema) string {
	var b strings.Builder
	b.WriteString("You extract structured company profiles from web search results.\n")
	b.WriteString("Answer with a single JSON object and nothing else. Use exactly these keys:\n")
	for _, f := range schema.Fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Key, req, f.Description)
	}
	b.WriteString("Use null for anything the documents do not support. Never guess and never use ")
	b.WriteString("placeholders such as \"N/A\" or \"Unknown\". Lists are JSON arrays; executives are ")
	b.WriteString("objects with \"name\" and \"title\".")
	return b.String()
}

func userPrompt(req Request, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n", req.Identity.Name)
	if req.Identity.Ticker != "" {
		fmt.Fprintf(&b, "Ticker: %s\n", req.Identity.Ticker)
	}
	if req.Identity.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", req.Identity.Website)
	}
	if req.Identity.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", req.Identity.Location)
	}
	if g := phaseGuidance[req.Phase]; g != "" {
		b.WriteString("\n" + g + "\n")
	}

	b.WriteString("\nDocuments:\n")
	if len(req.Documents) == 0 {
		b.WriteString("(none found)\n")
	}
	for i, d := range req.Documents {
		var doc strings.Builder
		fmt.Fprintf(&doc, "\n[%d] %s\nURL: %s\n", i+1, d.Title, d.URL)
		if d.Snippet != "" {
			doc.WriteString(d.Snippet + "\n")
		}
		if d.Content != "" {
			doc.WriteString(d.Content + "\n")
		}
		if b.Len()+doc.Len() > maxChars {
			remaining := maxChars - b.Len()
			if remaining > 200 {
				b.WriteString(strings.ToValidUTF8(doc.String()[:remaining], ""))
				b.WriteString("\n")
			}
			break
		}
		b.WriteString(doc.String())
	}
	return b.String()
}
