package clickup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kazz187/taskdigest/pkg/cerr"
)

const (
	DefaultBaseURL = "https://api.clickup.com/api/v2/"

	// personalTokenPrefix marks ClickUp personal API tokens, which are sent
	// as the bare Authorization value instead of a Bearer credential.
	personalTokenPrefix = "pk_"

	maxErrorBody = 64 << 10
)

// ResponseError is a non-2xx answer from the ClickUp API.
type ResponseError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("clickup: GET %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
	timeout time.Duration
	base    *http.Client
}

func WithBaseURL(u string) Option {
	return func(o *clientOptions) { o.baseURL = u }
}

func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithHTTPClient sets the client whose transport carries the requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.base = c }
}

// NewClient returns a client that attaches token to every request.
func NewClient(token string, opts ...Option) (*Client, error) {
	o := clientOptions{
		baseURL: DefaultBaseURL,
		timeout: 30 * time.Second,
		base:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if token == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "clickup token is empty", nil)
	}

	base, err := url.Parse(o.baseURL)
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid clickup base url", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	var hc *http.Client
	if strings.HasPrefix(token, personalTokenPrefix) {
		hc = &http.Client{Transport: &personalTokenTransport{token: token, base: o.base.Transport}}
	} else {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, o.base)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	hc.Timeout = o.timeout

	return &Client{baseURL: base, http: hc}, nil
}

// Call issues GET <base>/<path>?<query> and decodes the JSON body into out.
// It never retries.
func (c *Client) Call(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to build clickup request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return cerr.NewError(cerr.Unavailable, "clickup is unreachable", err)
	}
	defer resp.Body.Close()

	slog.DebugContext(ctx, "clickup: request", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		respErr := &ResponseError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return cerr.NewError(cerr.Unauthenticated, "clickup rejected the credential", respErr)
		}
		return cerr.NewError(cerr.Unavailable, "clickup request failed", respErr)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return cerr.NewError(cerr.Unavailable, "clickup response interrupted", err)
		}
		return cerr.NewError(cerr.DataLoss, fmt.Sprintf("malformed clickup response for %s", path), err)
	}
	return nil
}

type personalTokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *personalTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
