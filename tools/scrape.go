package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/BaSui01/finflow/internal/tlsutil"
	"github.com/BaSui01/finflow/types"
)

// ScrapeResult represents content extracted from a page.
type ScrapeResult struct {
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	WordCount int           `json:"word_count"`
	Links     []ScrapedLink `json:"links,omitempty"`
	ScrapedAt time.Time     `json:"scraped_at"`
}

// ScrapedLink is a hyperlink found in the page.
type ScrapedLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Scraper fetches a page and extracts its readable text.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*ScrapeResult, error)
}

// HTTPScraper downloads pages over HTTP and parses them with x/net/html.
type HTTPScraper struct {
	client    *http.Client
	maxLength int
	userAgent string
}

// NewHTTPScraper creates a scraper. maxLength bounds the extracted text; proxy
// follows tlsutil.ClientOptions.Proxy.
func NewHTTPScraper(timeout time.Duration, maxLength int, proxy string) *HTTPScraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxLength <= 0 {
		maxLength = 50000
	}
	return &HTTPScraper{
		client:    tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: timeout, Proxy: proxy}),
		maxLength: maxLength,
		userAgent: "finflow/1.0 (+https://github.com/BaSui01/finflow)",
	}
}

// Scrape implements Scraper.
func (s *HTTPScraper) Scrape(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid url %q", pageURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.NewTransient(err, "fetch %s", u.Host)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, MapHTTPError(resp.StatusCode, resp.Status, "scrape")
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, types.NewTransient(err, "parse %s", u.Host)
	}

	res := extract(doc, u, s.maxLength)
	res.URL = u.String()
	res.ScrapedAt = time.Now().UTC()
	return res, nil
}

var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Form:     true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.Tr: true, atom.Article: true, atom.Section: true,
}

// extract walks the parsed tree collecting title, visible text and links.
func extract(doc *html.Node, base *url.URL, maxLength int) *ScrapeResult {
	res := &ScrapeResult{}
	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.DataAtom] {
				return
			}
			switch n.DataAtom {
			case atom.Title:
				if res.Title == "" && n.FirstChild != nil {
					res.Title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case atom.A:
				if href := attr(n, "href"); href != "" {
					if ref, err := base.Parse(href); err == nil && (ref.Scheme == "http" || ref.Scheme == "https") {
						res.Links = append(res.Links, ScrapedLink{Text: strings.TrimSpace(textOf(n)), URL: ref.String()})
					}
				}
			}
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	content := normalizeLines(sb.String())
	if len(content) > maxLength {
		content = content[:maxLength]
	}
	res.Content = content
	res.WordCount = len(strings.Fields(content))
	return res
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

type scrapeArgs struct {
	URL string `json:"url"`
}

// NewScrapeWebsiteTool creates the scrape tool over a Scraper.
func NewScrapeWebsiteTool(scraper Scraper, logger *zap.Logger) Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema := Schema{
		Name:        "scrape_website",
		Description: "Fetch a web page and return its title, readable text and links.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"url": {"type": "string", "description": "The page URL"}},
			"required": ["url"]
		}`),
	}

	return NewFunc(schema, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params scrapeArgs
		if err := json.Unmarshal(args, &params); err != nil || params.URL == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "scrape_website requires url")
		}
		start := time.Now()
		res, err := scraper.Scrape(ctx, params.URL)
		if err != nil {
			logger.Warn("web scrape failed", zap.String("url", params.URL), zap.Error(err))
			return nil, fmt.Errorf("web scrape failed: %w", err)
		}
		logger.Debug("web scrape completed",
			zap.String("url", params.URL),
			zap.Int("word_count", res.WordCount),
			zap.Duration("duration", time.Since(start)))
		return json.Marshal(res)
	})
}
