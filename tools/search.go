package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/internal/tlsutil"
	"github.com/BaSui01/finflow/types"
)

// SearchProvider defines the interface for web search backends.
type SearchProvider interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
	Name() string
}

// SearchOptions configures a search request.
type SearchOptions struct {
	MaxResults int    `json:"max_results"`
	Kind       string `json:"kind,omitempty"` // "search" or "news"
	TimeRange  string `json:"time_range,omitempty"`
	Region     string `json:"region,omitempty"`
}

// SearchResult represents a single search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// SerperConfig configures the Serper search client.
type SerperConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Proxy   string        `yaml:"proxy" env:"PROXY"`
}

// SerperProvider calls the google.serper.dev JSON API.
type SerperProvider struct {
	cfg    SerperConfig
	client *http.Client
}

// NewSerperProvider creates a Serper client.
func NewSerperProvider(cfg SerperConfig) *SerperProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://google.serper.dev"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SerperProvider{cfg: cfg, client: tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: cfg.Timeout, Proxy: cfg.Proxy})}
}

func (p *SerperProvider) Name() string { return "serper" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
	Tbs string `json:"tbs,omitempty"`
	Gl  string `json:"gl,omitempty"`
}

type serperItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
	Date    string `json:"date"`
}

type serperResponse struct {
	Organic []serperItem `json:"organic"`
	News    []serperItem `json:"news"`
}

var serperTimeRanges = map[string]string{
	"day":   "qdr:d",
	"week":  "qdr:w",
	"month": "qdr:m",
	"year":  "qdr:y",
}

// Search implements SearchProvider.
func (p *SerperProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrAuthentication, "serper api key is not configured")
	}
	endpoint := "/search"
	if opts.Kind == "news" {
		endpoint = "/news"
	}

	body, _ := json.Marshal(serperRequest{
		Q:   query,
		Num: opts.MaxResults,
		Tbs: serperTimeRanges[opts.TimeRange],
		Gl:  opts.Region,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewTransient(err, "serper request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, MapHTTPError(resp.StatusCode, string(msg), "serper")
	}

	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, types.NewTransient(err, "decode serper response")
	}

	items := sr.Organic
	if opts.Kind == "news" {
		items = sr.News
	}
	results := make([]SearchResult, 0, len(items))
	for _, it := range items {
		results = append(results, SearchResult{
			Title:       it.Title,
			URL:         it.Link,
			Snippet:     it.Snippet,
			Source:      it.Source,
			PublishedAt: it.Date,
		})
		if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
			break
		}
	}
	return results, nil
}

// MapHTTPError converts an upstream HTTP failure into a typed error; 429 and
// 5xx are retryable.
func MapHTTPError(status int, msg, provider string) *types.Error {
	var e *types.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = types.NewError(types.ErrAuthentication, msg)
	case status == http.StatusTooManyRequests:
		e = types.NewError(types.ErrRateLimit, msg).WithRetryable(true)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e = types.NewError(types.ErrUpstreamTimeout, msg).WithRetryable(true)
	case status >= 500:
		e = types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	default:
		e = types.NewError(types.ErrInvalidRequest, msg)
	}
	return e.WithHTTPStatus(status).WithProvider(provider)
}

type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	TimeRange  string `json:"time_range,omitempty"`
}

type searchResponse struct {
	Query      string         `json:"query"`
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
}

// NewWebSearchTool creates a search tool over provider. kind selects general
// web results ("search") or news results ("news").
func NewWebSearchTool(name string, provider SearchProvider, defaults SearchOptions, logger *zap.Logger) Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.MaxResults <= 0 {
		defaults.MaxResults = 10
	}

	schema := Schema{
		Name:        name,
		Description: "Search the internet. Returns titles, URLs and snippets of relevant results.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The search query"},
				"max_results": {"type": "integer", "description": "Maximum number of results"},
				"time_range": {"type": "string", "enum": ["day", "week", "month", "year"]}
			},
			"required": ["query"]
		}`),
	}

	return NewFunc(schema, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params searchArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "invalid search arguments").WithCause(err)
		}
		if params.Query == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "query is required")
		}

		opts := defaults
		if params.MaxResults > 0 {
			opts.MaxResults = params.MaxResults
		}
		if params.TimeRange != "" {
			opts.TimeRange = params.TimeRange
		}

		start := time.Now()
		results, err := provider.Search(ctx, params.Query, opts)
		if err != nil {
			logger.Warn("web search failed", zap.String("query", params.Query), zap.Error(err))
			return nil, fmt.Errorf("web search failed: %w", err)
		}
		logger.Debug("web search completed",
			zap.String("query", params.Query),
			zap.Int("results", len(results)),
			zap.Duration("duration", time.Since(start)))

		return json.Marshal(searchResponse{Query: params.Query, Results: results, TotalCount: len(results)})
	})
}
