// Package backend is the HTTP client of the analytics REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rpay/rpay-insights/internal/query"
)

var (
	// ErrUnavailable marks transport failures: refused connections, DNS errors and
	// timeouts. The backend never answered.
	ErrUnavailable = errors.New("backend: unavailable")
	// ErrInvalidKind is returned for an unknown entity collection or endpoint.
	ErrInvalidKind = errors.New("backend: unsupported endpoint")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Path   string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s returned status %d", e.Path, e.Status)
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// Observer records request outcomes. outcome is ok, status or unavailable.
type Observer interface {
	ObserveBackend(endpoint, outcome string, elapsed time.Duration)
}

// Client talks to the analytics backend. Every call takes the caller's context so
// abandoned requests are cancelled.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient serves downloads. Only the wait for response headers is bounded;
	// the body streams for as long as the caller's context allows.
	streamClient *http.Client
	observer     Observer
}

// NewClient constructs a client. timeout bounds each request; zero means 30s.
// Downloads use timeout for the response headers only.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		streamClient: &http.Client{
			Transport: transport,
		},
	}
}

// WithObserver attaches a request observer.
func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches path and returns the raw body.
func (c *Client) Get(ctx context.Context, path string, params query.Params) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return io.ReadAll(resp.Body)
}

// Post sends payload as JSON and returns the raw body.
func (c *Client) Post(ctx context.Context, path string, params query.Params, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("backend: encode %s: %w", path, err)
	}
	resp, err := c.do(ctx, http.MethodPost, path, params, body)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return io.ReadAll(resp.Body)
}

// Download is a streamed file response. The caller must close Body.
type Download struct {
	Filename      string
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}

// Download fetches a file. fallback names it when the response has no usable
// Content-Disposition.
func (c *Client) Download(ctx context.Context, path string, params query.Params, fallback string) (*Download, error) {
	resp, err := c.send(ctx, c.streamClient, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	name := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = fallback
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Download{
		Filename:      name,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

// FilenameFromDisposition extracts the filename parameter of a Content-Disposition
// header, or "" when absent.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err == nil {
		if name := params["filename"]; name != "" {
			return sanitizeFilename(name)
		}
	}
	// tolerate unquoted names with spaces, which ParseMediaType rejects
	idx := strings.Index(strings.ToLower(header), "filename=")
	if idx < 0 {
		return ""
	}
	name := strings.TrimSpace(header[idx+len("filename="):])
	if semi := strings.IndexByte(name, ';'); semi >= 0 {
		name = name[:semi]
	}
	return sanitizeFilename(strings.Trim(name, `"' `))
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return strings.TrimSpace(name)
}

func (c *Client) do(ctx context.Context, method, path string, params query.Params, body []byte) (*http.Response, error) {
	return c.send(ctx, c.httpClient, method, path, params, body)
}

func (c *Client) send(ctx context.Context, client *http.Client, method, path string, params query.Params, body []byte) (*http.Response, error) {
	target := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("backend: build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.observe(path, "unavailable", start)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	if resp.StatusCode >= 400 {
		defer func() {
			_ = resp.Body.Close()
		}()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.observe(path, "status", start)
		return nil, &StatusError{Status: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(snippet))}
	}
	c.observe(path, "ok", start)
	return resp, nil
}

func (c *Client) observe(path, outcome string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveBackend(endpointLabel(path), outcome, time.Since(start))
}

// endpointLabel drops entity ids so metric cardinality stays bounded:
// /agents/42/stats becomes /agents/:id/stats.
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 {
		if _, err := ParseKind(parts[0]); err == nil && parts[1] != "list" && parts[1] != "count" {
			parts[1] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// LengthHeader formats the size for a Content-Length header, or "" when unknown.
func (d *Download) LengthHeader() string {
	if d.ContentLength < 0 {
		return ""
	}
	return strconv.FormatInt(d.ContentLength, 10)
}
