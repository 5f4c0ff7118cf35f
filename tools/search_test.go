package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/finflow/testutil"
	"github.com/BaSui01/finflow/types"
)

func TestSerperProvider_News(t *testing.T) {
	var gotPath, gotKey string
	var gotReq serperRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-KEY")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"news":[
			{"title":"Tesla shares jump","link":"https://news.example.com/1","snippet":"s1","source":"Example","date":"1 hour ago"},
			{"title":"Deliveries beat","link":"https://news.example.com/2","snippet":"s2"},
			{"title":"Third","link":"https://news.example.com/3"}
		]}`))
	}))
	defer srv.Close()

	p := NewSerperProvider(SerperConfig{APIKey: "k", BaseURL: srv.URL})
	res, err := p.Search(context.Background(), "tesla stock", SearchOptions{Kind: "news", MaxResults: 2, TimeRange: "day"})
	require.NoError(t, err)

	assert.Equal(t, "/news", gotPath)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "tesla stock", gotReq.Q)
	assert.Equal(t, "qdr:d", gotReq.Tbs)
	require.Len(t, res, 2)
	assert.Equal(t, "https://news.example.com/1", res[0].URL)
	assert.Equal(t, "Example", res[0].Source)
}

func TestSerperProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, types.ErrRateLimit, true},
		{http.StatusBadGateway, types.ErrUpstreamError, true},
		{http.StatusGatewayTimeout, types.ErrUpstreamTimeout, true},
		{http.StatusUnauthorized, types.ErrAuthentication, false},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			p := NewSerperProvider(SerperConfig{APIKey: "k", BaseURL: srv.URL})
			_, err := p.Search(context.Background(), "q", SearchOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.code, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}
}

func TestSerperProvider_MissingKey(t *testing.T) {
	_, err := NewSerperProvider(SerperConfig{}).Search(context.Background(), "q", SearchOptions{})
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
}

type stubSearch struct {
	query string
	opts  SearchOptions
	err   error
}

func (s *stubSearch) Name() string { return "stub" }

func (s *stubSearch) Search(_ context.Context, q string, opts SearchOptions) ([]SearchResult, error) {
	s.query, s.opts = q, opts
	if s.err != nil {
		return nil, s.err
	}
	return []SearchResult{{Title: "t", URL: "https://a.example"}}, nil
}

func TestWebSearchTool(t *testing.T) {
	p := &stubSearch{}
	tool := NewWebSearchTool("news_search", p, SearchOptions{Kind: "news"}, zap.NewNop())
	assert.Equal(t, "news_search", tool.Schema().Name)

	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"TSLA","time_range":"week"}`))
	require.NoError(t, err)
	assert.Equal(t, "TSLA", p.query)
	assert.Equal(t, "news", p.opts.Kind)
	assert.Equal(t, 10, p.opts.MaxResults)
	assert.Equal(t, "week", p.opts.TimeRange)

	resp := testutil.MustParseJSON[searchResponse](string(out))
	assert.Equal(t, 1, resp.TotalCount)

	_, err = tool.Call(context.Background(), json.RawMessage(`{}`))
	testutil.AssertErrorCode(t, err, types.ErrInvalidRequest)

	p.err = types.NewError(types.ErrRateLimit, "slow down").WithRetryable(true)
	_, err = tool.Call(context.Background(), json.RawMessage(`{"query":"TSLA"}`))
	assert.True(t, types.IsRetryable(err))
}
