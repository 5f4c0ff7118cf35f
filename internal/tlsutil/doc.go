// Package tlsutil builds the HTTP clients used by the outbound adapters
// (Gemini, Serper search, website scraping). Clients use TLS 1.2+ with AEAD-only
// cipher suites. The proxy and pool size come from ClientOptions, which the
// model, search and scrape config sections fill in.
package tlsutil
