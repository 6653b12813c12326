package source

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

const localMaxBody = 512 * 1024

// LocalReader fetches pages directly over HTTP and converts them to text.
// It costs nothing per call, so it runs before the Jina reader; blocked or
// script-only pages fail and fall through.
type LocalReader struct {
	client *http.Client
}

// NewLocalReader creates a LocalReader. A nil client gets a 15s default.
func NewLocalReader(client *http.Client) *LocalReader {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &LocalReader{client: client}
}

// Name identifies the reader in logs.
func (l *LocalReader) Name() string { return "local_http" }

// Read fetches url and returns its title and visible text.
func (l *LocalReader) Read(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CompanyProfiler/1.0)")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, localMaxBody))
	if err != nil {
		return "", eris.Wrap(err, "local_http: read body")
	}

	if reason := blockReason(resp.StatusCode, resp.Header, body); reason != "" {
		return "", eris.Errorf("local_http: blocked (%s)", reason)
	}
	if resp.StatusCode >= 400 {
		return "", eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.HasPrefix(ct, "text/") {
		return "", eris.Errorf("local_http: unsupported content type %q", ct)
	}

	text := pageText(body)
	if len(text) < 100 {
		return "", eris.New("local_http: empty page")
	}
	return text, nil
}

// blockReason names the anti-bot wall a response hit, or returns "" when the
// page looks readable.
func blockReason(status int, header http.Header, body []byte) string {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("Cf-Ray") != "" || strings.EqualFold(header.Get("Server"), "cloudflare") {
			return "cloudflare"
		}
	}
	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "checking your browser"), strings.Contains(lower, "cf-browser-verification"):
		return "cloudflare"
	case strings.Contains(lower, "captcha"):
		return "captcha"
	case len(body) < 2000 && strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript"):
		return "script_only"
	}
	return ""
}

// pageText drops boilerplate elements and returns the title followed by the
// visible body text.
func pageText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, footer, svg").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if title == "" {
		return text
	}
	return title + "\n\n" + text
}
