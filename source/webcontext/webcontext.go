// Package webcontext fetches readable text from a web page so it can
// ground process generation. Pages are fetched over validated HTTPS
// only, run through readability extraction, and converted to markdown
// for prompt embedding.
package webcontext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/c360studio/bpmnforge/source/weburl"
)

const (
	defaultUserAgent  = "bpmnforge/1.0"
	defaultMaxContent = 2 * 1024 * 1024 // 2MB of HTML is plenty
	maxContextChars   = 20000           // cap on extracted text for prompts
)

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// Page is the readable content of one fetched URL.
type Page struct {
	URL     string
	Title   string
	Content string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// Fetcher fetches web content with SSRF checks and converts it to
// markdown. Safe for concurrent use.
type Fetcher struct {
	client         *http.Client
	converter      *md.Converter
	userAgent      string
	maxContentSize int64
	logger         *slog.Logger
}

// NewFetcher creates a Fetcher with DNS-rebinding protection: resolved
// IPs are validated before dialing, and redirects are re-validated.
func NewFetcher(timeout time.Duration, opts ...Option) *Fetcher {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	safeDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}

		for _, ipAddr := range ips {
			if weburl.IsPrivateIP(ipAddr.IP) {
				return nil, fmt.Errorf("connection to private IP %s is not allowed", ipAddr.IP)
			}
		}

		for _, ipAddr := range ips {
			connAddr := net.JoinHostPort(ipAddr.IP.String(), port)
			conn, err := dialer.DialContext(ctx, network, connAddr)
			if err == nil {
				return conn, nil
			}
		}

		return nil, fmt.Errorf("failed to connect to any resolved IP")
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	f := &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:           safeDialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				if err := weburl.ValidateURL(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		converter:      converter,
		userAgent:      defaultUserAgent,
		maxContentSize: defaultMaxContent,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves a page and returns its readable content.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := weburl.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxContentSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return f.Extract(body, rawURL)
}

// Extract converts fetched HTML into a Page. Readability extraction
// comes first; when it finds nothing (non-article layouts), the whole
// body is converted after stripping navigation chrome.
func (f *Fetcher) Extract(body []byte, rawURL string) (*Page, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	page := &Page{URL: rawURL}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		page.Title = article.Title
		if markdown, convErr := f.converter.ConvertString(article.Content); convErr == nil {
			page.Content = cleanText(markdown)
		} else {
			page.Content = cleanText(article.TextContent)
		}
	} else {
		f.logger.Debug("Readability extraction empty, converting full body", "url", rawURL)
		page.Title = htmlTitle(body)
		markdown, convErr := f.converter.ConvertString(string(body))
		if convErr != nil {
			return nil, fmt.Errorf("convert page: %w", convErr)
		}
		page.Content = cleanText(markdown)
	}

	if page.Content == "" {
		return nil, fmt.Errorf("page %s has no readable content", rawURL)
	}
	return page, nil
}

// cleanText normalizes whitespace and caps length for prompt use.
func cleanText(s string) string {
	s = excessiveLinesRe.ReplaceAllString(s, "\n\n\n")
	s = strings.TrimSpace(s)
	if len(s) > maxContextChars {
		s = s[:maxContextChars] + "\n[truncated]"
	}
	return s
}

// htmlTitle pulls the <title> element out of raw HTML.
func htmlTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
