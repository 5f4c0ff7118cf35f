package report

import (
	"go.uber.org/zap"

	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/tools"
)

// ToolSources overrides the network-facing tool backends; nil fields are
// built from the configuration.
type ToolSources struct {
	Search  tools.SearchProvider
	Scraper tools.Scraper
}

// NewToolRegistry constructs the tools of one run. Search and scrape tools
// are rate limited per the configuration.
func NewToolRegistry(cfg *config.Config, src ToolSources, logger *zap.Logger) (*tools.Registry, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	search := src.Search
	if search == nil {
		search = tools.NewSerperProvider(tools.SerperConfig{
			APIKey:  cfg.Search.APIKey,
			BaseURL: cfg.Search.BaseURL,
			Timeout: cfg.Search.Timeout,
			Proxy:   cfg.Search.Proxy,
		})
	}
	scraper := src.Scraper
	if scraper == nil {
		scraper = tools.NewHTTPScraper(cfg.Scrape.Timeout, cfg.Scrape.MaxLength, cfg.Scrape.Proxy)
	}

	searchLimit := &tools.RateLimitConfig{PerSecond: cfg.Search.RatePerSecond, Burst: cfg.Search.Burst}
	scrapeLimit := &tools.RateLimitConfig{PerSecond: cfg.Scrape.RatePerSecond, Burst: cfg.Scrape.Burst}

	reg := tools.NewRegistry(logger)
	entries := []struct {
		tool  tools.Tool
		limit *tools.RateLimitConfig
	}{
		{tools.NewWebSearchTool("web_search", search, tools.SearchOptions{MaxResults: cfg.Search.MaxResults, Kind: "search"}, logger), searchLimit},
		{tools.NewWebSearchTool("news_search", search, tools.SearchOptions{MaxResults: cfg.Search.MaxResults, Kind: "news"}, logger), searchLimit},
		{tools.NewScrapeWebsiteTool(scraper, logger), scrapeLimit},
		{tools.NewChartTool(), nil},
		{tools.NewFileWriterTool("file_writer"), nil},
		{tools.NewFileReaderTool(), nil},
	}
	for _, e := range entries {
		if err := reg.Register(e.tool, e.limit); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
