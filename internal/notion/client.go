// Package notion talks to the Notion REST API that backs the paper, review,
// email summary and billing databases.
package notion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"emailmanager/internal/retry"
	"emailmanager/internal/util"
)

type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTransport
	FailureTimeout
	FailureStatus
	FailureDecode
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransport:
		return "transport"
	case FailureTimeout:
		return "timeout"
	case FailureStatus:
		return "status"
	case FailureDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of one logical request after retries. Data holds the
// decoded body whenever one could be decoded, including Notion error objects.
type Result struct {
	Data   map[string]any
	Status int
	Kind   FailureKind
	Err    error
}

// OK reports whether the response carries an object id, which is how every
// create/update/retrieve call signals success.
func (r Result) OK() bool {
	return r.Kind == FailureNone && r.ID() != ""
}

func (r Result) ID() string {
	id, _ := r.Data["id"].(string)
	return id
}

// Results returns the "results" array of a search or query response.
func (r Result) Results() []map[string]any {
	raw, _ := r.Data["results"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// ErrorMessage is Notion's own "code: message" pair, or the transport error.
func (r Result) ErrorMessage() string {
	code, _ := r.Data["code"].(string)
	msg, _ := r.Data["message"].(string)
	if code != "" || msg != "" {
		return code + ": " + msg
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

type Options struct {
	Token         string
	BaseURL       string
	Version       string
	Timeout       time.Duration
	RateLimitRPS  int
	RetryAttempts int
	RetryBackoff  time.Duration
	HTTPClient    *http.Client
}

type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *RateLimiter
	retry      retry.Policy
	log        zerolog.Logger
}

func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.notion.com/v1"
	}
	if opts.Version == "" {
		opts.Version = "2022-06-28"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		opts:       opts,
		httpClient: httpClient,
		limiter:    NewRateLimiter(opts.RateLimitRPS),
		log:        log.With().Str("component", "notion").Logger(),
	}
	c.retry = retry.Policy{
		MaxAttempts: opts.RetryAttempts,
		Backoff:     retry.Fixed(opts.RetryBackoff),
		Retryable:   isRetryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("notion request failed, retrying")
		},
	}
	return c
}

type attemptError struct {
	kind   FailureKind
	status int
	err    error
}

func (e *attemptError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("notion status %d: %v", e.status, e.err)
	}
	return e.err.Error()
}

func (e *attemptError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var ae *attemptError
	if !errors.As(err, &ae) {
		return true
	}
	switch ae.kind {
	case FailureTransport, FailureTimeout:
		return true
	case FailureStatus:
		return ae.status == http.StatusTooManyRequests || ae.status >= 500
	default:
		return false
	}
}

// Request sends one API call, retrying transport failures, 429 and 5xx with a
// fixed pause. It never returns an error; callers inspect the Result.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) Result {
	var payload []byte
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			return Result{Kind: FailureDecode, Err: fmt.Errorf("encode %s %s: %w", method, endpoint, err)}
		}
		payload = blob
	}

	url := strings.TrimRight(c.opts.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var res Result
	err := c.retry.Do(ctx, func(attempt int) error {
		res = c.do(ctx, method, url, payload)
		if res.Kind == FailureNone {
			return nil
		}
		return &attemptError{kind: res.Kind, status: res.Status, err: res.Err}
	})
	if err != nil {
		c.log.Warn().
			Str("endpoint", endpoint).
			Str("method", method).
			Int("status", res.Status).
			Str("kind", res.Kind.String()).
			Str("error", res.ErrorMessage()).
			Msg("notion request failed")
	}
	return res
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) Result {
	if strings.TrimSpace(c.opts.Token) == "" {
		return Result{Kind: FailureStatus, Err: errors.New("missing NOTION_TOKEN")}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{Kind: FailureTransport, Err: err}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Result{Kind: FailureTransport, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	req.Header.Set("Notion-Version", c.opts.Version)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := FailureTransport
		if isTimeout(err) {
			kind = FailureTimeout
		}
		return Result{Kind: kind, Err: err}
	}
	blob, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return Result{Kind: FailureTransport, Status: resp.StatusCode, Err: readErr}
	}

	c.log.Debug().Str("method", method).Str("url", url).Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("notion request")

	var data map[string]any
	decodeErr := json.Unmarshal(blob, &data)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res := Result{Data: data, Status: resp.StatusCode, Kind: FailureStatus}
		res.Err = fmt.Errorf("notion api error: %s", util.FirstNonEmpty(res.ErrorMessage(), string(blob)))
		return res
	}
	if decodeErr != nil {
		return Result{Status: resp.StatusCode, Kind: FailureDecode, Err: decodeErr}
	}
	return Result{Data: data, Status: resp.StatusCode}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// FindDatabase searches the workspace for a database whose title contains
// name and returns its id, or "" when none is shared with the integration.
func (c *Client) FindDatabase(ctx context.Context, name string) (string, Result) {
	res := c.Request(ctx, http.MethodPost, "/search", map[string]any{
		"query":  name,
		"filter": map[string]any{"property": "object", "value": "database"},
	})
	if res.Kind != FailureNone {
		return "", res
	}
	for _, db := range res.Results() {
		if strings.Contains(PlainTitle(db), name) {
			id, _ := db["id"].(string)
			return id, res
		}
	}
	return "", res
}

func (c *Client) CreateDatabase(ctx context.Context, parentPageID, title string, properties map[string]any) Result {
	return c.Request(ctx, http.MethodPost, "/databases", map[string]any{
		"parent":     map[string]any{"type": "page_id", "page_id": parentPageID},
		"title":      []any{map[string]any{"type": "text", "text": map[string]any{"content": title}}},
		"properties": properties,
	})
}

// QueryDatabase runs a filtered query. A nil filter returns the first page of
// rows.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter map[string]any) Result {
	body := map[string]any{}
	if filter != nil {
		body["filter"] = filter
	}
	return c.Request(ctx, http.MethodPost, "/databases/"+databaseID+"/query", body)
}

func (c *Client) CreatePage(ctx context.Context, databaseID string, properties map[string]any) Result {
	return c.Request(ctx, http.MethodPost, "/pages", map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": properties,
	})
}

func (c *Client) UpdatePage(ctx context.Context, pageID string, properties map[string]any) Result {
	return c.Request(ctx, http.MethodPatch, "/pages/"+pageID, map[string]any{
		"properties": properties,
	})
}

// PlainTitle joins the plain_text fragments of a database title.
func PlainTitle(obj map[string]any) string {
	parts, _ := obj["title"].([]any)
	var b strings.Builder
	for _, p := range parts {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		s, _ := m["plain_text"].(string)
		b.WriteString(s)
	}
	return b.String()
}
