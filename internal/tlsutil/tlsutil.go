package tlsutil

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DirectProxy disables proxying, including HTTP(S)_PROXY from the environment.
const DirectProxy = "direct"

const (
	defaultTimeout          = 30 * time.Second
	defaultIdleConnsPerHost = 10
)

// ClientOptions configures an outbound client. Zero values keep the defaults.
type ClientOptions struct {
	// Timeout bounds a whole request, body included.
	Timeout time.Duration
	// Proxy is a proxy URL (http, https or socks5), DirectProxy, or empty to
	// use HTTP(S)_PROXY from the environment.
	Proxy string
	// MaxIdleConnsPerHost caps the keep-alive pool per upstream host.
	MaxIdleConnsPerHost int
}

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ProxyFunc resolves a proxy setting into a Transport.Proxy function.
// A nil function means direct connections.
func ProxyFunc(raw string) (func(*http.Request) (*url.URL, error), error) {
	switch raw {
	case "":
		return http.ProxyFromEnvironment, nil
	case DirectProxy:
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("proxy %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy %q: missing host", raw)
	}
	return http.ProxyURL(u), nil
}

// SecureTransport returns a TLS-hardened transport for opts. An invalid proxy
// setting does not fall back to a direct connection: every request through
// the transport fails with the parse error.
func SecureTransport(opts ClientOptions) *http.Transport {
	proxy, err := ProxyFunc(opts.Proxy)
	if err != nil {
		proxy = func(*http.Request) (*url.URL, error) { return nil, err }
	}
	idlePerHost := opts.MaxIdleConnsPerHost
	if idlePerHost <= 0 {
		idlePerHost = defaultIdleConnsPerHost
	}
	return &http.Transport{
		Proxy:           proxy,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   idlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewHTTPClient returns the client used by the model, search and scrape
// adapters.
func NewHTTPClient(opts ClientOptions) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(opts),
	}
}
