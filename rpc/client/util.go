package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// NewHTTPClient creates the http.Client shared by all requests of a client.
// Timeouts are applied per request through the context. Redirects are never
// followed: a redirected write would be replayed as GET against another path
// and its answer would be taken for the answer to the write.
func NewHTTPClient(idleTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     idleTimeout,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// keyURL builds the url of a single key below base
func keyURL(base, key string) string {
	return strings.TrimRight(base, "/") + common.PathKV + "/" + url.PathEscape(key)
}

// pathURL builds the url of path below base
func pathURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// newRequest creates a request with an optional JSON body
func newRequest(ctx context.Context, method, target string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// drainAndClose discards the rest of the body so the connection can be reused
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		Logger.Errorf("Failed to close response body: %v", err)
	}
}
