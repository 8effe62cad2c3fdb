package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roach88/synq/internal/ir"
)

// BatchPath is the authority endpoint receiving batches.
const BatchPath = "/api/v2/user/batch-update"

// Credential headers.
const (
	HeaderUser      = "x-api-user"
	HeaderKey       = "x-api-key"
	HeaderRequestID = "X-Request-Id"
)

const (
	defaultHTTPTimeout        = 60 * time.Second
	defaultHTTPConnectTimeout = 5 * time.Second
	defaultHTTPTLSTimeout     = 5 * time.Second
	maxErrorBody              = 64 << 10
)

func defaultClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHTTPConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHTTPTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// HTTP submits batches as JSON POST requests.
//
// Thread-safety: safe for concurrent use.
type HTTP struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	id    string
	token string
}

var _ Transport = (*HTTP)(nil)

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTP) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTimeout sets the overall request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTP) {
		if d > 0 {
			t.client = defaultClient(d)
		}
	}
}

// NewHTTP creates a transport for the authority at baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTP {
	t := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultClient(defaultHTTPTimeout),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetCredentials attaches the identity/secret pair to later requests.
func (t *HTTP) SetCredentials(id, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.id = id
	t.token = token
}

// Submit runs Do on a new goroutine and hands the outcome to reply.
func (t *HTTP) Submit(ctx context.Context, b Batch, reply Reply) {
	go func() {
		resp, err := t.Do(ctx, b)
		reply(resp, err)
	}()
}

// Do performs the request synchronously.
func (t *HTTP) Do(ctx context.Context, b Batch) (*Response, error) {
	body, err := ir.MarshalOperations(b.Ops)
	if err != nil {
		// Retrying cannot fix an unencodable batch.
		return nil, &Failure{Class: ClassDefinitive, Message: MessageGeneric, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(b), bytes.NewReader(body))
	if err != nil {
		return nil, &Failure{Class: ClassDefinitive, Message: MessageGeneric, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "synq/"+ir.ClientVersion)
	if b.ID != "" {
		req.Header.Set(HeaderRequestID, b.ID)
	}
	t.mu.RLock()
	if t.id != "" {
		req.Header.Set(HeaderUser, t.id)
		req.Header.Set(HeaderKey, t.token)
	}
	t.mu.RUnlock()

	resp, err := t.client.Do(req)
	if err != nil {
		slog.Debug("batch request failed", "batch_id", b.ID, "error", err)
		return nil, Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, parseFailure(resp.StatusCode, data)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, Transient(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	return parseResponse(resp.StatusCode, resp.Body)
}

func (t *HTTP) endpoint(b Batch) string {
	q := url.Values{}
	q.Set("date", strconv.FormatInt(b.Timestamp.UnixMilli(), 10))
	q.Set("_v", strconv.FormatInt(b.Version, 10))
	if b.BuildTag != "" {
		q.Set("siteVersion", b.BuildTag)
	}
	return t.baseURL + BatchPath + "?" + q.Encode()
}

// parseResponse decodes a success payload. An empty body is an empty
// response. A payload that is not a JSON object is unreadable: the
// authority already accepted the batch, so it must not be resent.
func parseResponse(status int, r io.Reader) (*Response, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Unreadable(status, fmt.Errorf("read response: %w", err))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &Response{Fields: map[string]any{}}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, Unreadable(status, fmt.Errorf("decode response: %w", err))
	}
	if fields == nil {
		fields = map[string]any{}
	}

	out := &Response{Fields: fields}
	if wm, ok := fields["wasModified"]; ok {
		out.WasModified, _ = wm.(bool)
		delete(fields, "wasModified")
	}
	return out, nil
}

// errorBody is the authority's error document.
type errorBody struct {
	Err         string `json:"err"`
	NeedRefresh bool   `json:"needRefresh"`
}

// parseFailure builds a definitive failure from an error response. The
// message is the "err" member when present, else the raw body.
func parseFailure(status int, data []byte) *Failure {
	f := Definitive(status, "")

	trimmed := strings.TrimSpace(string(data))
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		f.NeedRefresh = eb.NeedRefresh
		f.Message = eb.Err
		if f.Message == "" && !f.NeedRefresh {
			f.Message = trimmed
		}
		return f
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Message = s
		return f
	}
	f.Message = trimmed
	return f
}
