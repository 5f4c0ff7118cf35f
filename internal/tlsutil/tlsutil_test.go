package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	aead := map[uint16]bool{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: true,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:   true,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: true,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   true,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:  true,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:    true,
	}
	for _, cs := range cfg.CipherSuites {
		assert.True(t, aead[cs], "non-AEAD cipher suite %s", tls.CipherSuiteName(cs))
	}

	// each call returns an independent config
	cfg.MinVersion = tls.VersionTLS13
	assert.Equal(t, uint16(tls.VersionTLS12), DefaultTLSConfig().MinVersion)
}

func TestProxyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://google.serper.dev/search", nil)

	tests := []struct {
		name    string
		raw     string
		want    string
		direct  bool
		wantErr bool
	}{
		{name: "environment", raw: ""},
		{name: "direct", raw: DirectProxy, direct: true},
		{name: "http proxy", raw: "http://proxy.internal:3128", want: "http://proxy.internal:3128"},
		{name: "socks5 proxy", raw: "socks5://127.0.0.1:1080", want: "socks5://127.0.0.1:1080"},
		{name: "unsupported scheme", raw: "ftp://proxy:21", wantErr: true},
		{name: "missing host", raw: "http://", wantErr: true},
		{name: "unparsable", raw: "http://[::1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := ProxyFunc(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.direct {
				assert.Nil(t, fn)
				return
			}
			require.NotNil(t, fn)
			if tt.want != "" {
				u, err := fn(req)
				require.NoError(t, err)
				assert.Equal(t, tt.want, u.String())
			}
		})
	}
}

func TestSecureTransport(t *testing.T) {
	tr := SecureTransport(ClientOptions{})
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.NotNil(t, tr.Proxy)
	assert.Equal(t, defaultIdleConnsPerHost, tr.MaxIdleConnsPerHost)

	tr = SecureTransport(ClientOptions{Proxy: DirectProxy, MaxIdleConnsPerHost: 2})
	assert.Nil(t, tr.Proxy)
	assert.Equal(t, 2, tr.MaxIdleConnsPerHost)
}

func TestSecureTransport_InvalidProxyFailsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "reached")
	}))
	defer srv.Close()

	client := NewHTTPClient(ClientOptions{Timeout: time.Second, Proxy: "ftp://proxy:21"})
	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestNewHTTPClient(t *testing.T) {
	client := NewHTTPClient(ClientOptions{Timeout: 15 * time.Second})
	assert.Equal(t, 15*time.Second, client.Timeout)
	require.IsType(t, &http.Transport{}, client.Transport)

	assert.Equal(t, defaultTimeout, NewHTTPClient(ClientOptions{}).Timeout)
}

func TestNewHTTPClient_TalksToTLSServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	client := NewHTTPClient(ClientOptions{Timeout: 5 * time.Second, Proxy: DirectProxy})
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	client.Transport.(*http.Transport).TLSClientConfig.RootCAs = pool

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
	require.NotNil(t, resp.TLS)
	assert.GreaterOrEqual(t, resp.TLS.Version, uint16(tls.VersionTLS12))
}
