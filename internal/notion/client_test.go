package notion

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, payload any) *http.Response {
	blob, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(string(blob))),
		Header:     make(http.Header),
	}
}

func newTestClient(rt roundTripFunc) *Client {
	c := NewClient(Options{
		Token:         "secret_test",
		BaseURL:       "https://notion.test/v1",
		RateLimitRPS:  1000,
		RetryAttempts: 3,
	}, zerolog.Nop())
	c.httpClient = &http.Client{Transport: rt}
	return c
}

func TestRequestRetriesServerErrors(t *testing.T) {
	attempt := 0
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		attempt++
		if r.Header.Get("Authorization") != "Bearer secret_test" {
			t.Fatalf("auth header %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Notion-Version") != "2022-06-28" {
			t.Fatalf("version header %q", r.Header.Get("Notion-Version"))
		}
		if attempt == 1 {
			return jsonResponse(http.StatusBadGateway, map[string]any{"object": "error"}), nil
		}
		return jsonResponse(http.StatusOK, map[string]any{"id": "page-1"}), nil
	})

	res := client.Request(context.Background(), http.MethodPost, "/pages", map[string]any{"x": 1})
	require.True(t, res.OK())
	assert.Equal(t, "page-1", res.ID())
	assert.Equal(t, 2, attempt)
}

func TestRequestDoesNotRetryClientErrors(t *testing.T) {
	attempt := 0
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		attempt++
		return jsonResponse(http.StatusBadRequest, map[string]any{
			"object": "error", "code": "validation_error", "message": "bad property",
		}), nil
	})

	res := client.Request(context.Background(), http.MethodPost, "/pages", nil)
	assert.False(t, res.OK())
	assert.Equal(t, FailureStatus, res.Kind)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "validation_error: bad property", res.ErrorMessage())
	assert.Equal(t, 1, attempt)
}

func TestRequestTransportFailureExhaustsAttempts(t *testing.T) {
	attempt := 0
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		attempt++
		return nil, errors.New("connection reset")
	})

	res := client.Request(context.Background(), http.MethodGet, "/users/me", nil)
	assert.False(t, res.OK())
	assert.Equal(t, FailureTransport, res.Kind)
	assert.Equal(t, 3, attempt)
}

func TestRequestDecodeFailure(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("<html>")),
			Header:     make(http.Header),
		}, nil
	})

	res := client.Request(context.Background(), http.MethodGet, "/users/me", nil)
	assert.Equal(t, FailureDecode, res.Kind)
	assert.False(t, res.OK())
}

func TestRequestWithoutTokenFailsFast(t *testing.T) {
	called := false
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		called = true
		return jsonResponse(http.StatusOK, map[string]any{"id": "x"}), nil
	})
	client.opts.Token = ""

	res := client.Request(context.Background(), http.MethodGet, "/users/me", nil)
	assert.False(t, res.OK())
	assert.False(t, called)
}

func TestFindDatabaseMatchesTitle(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		blob, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(blob, &body))
		assert.Equal(t, "论文投稿", body["query"])
		return jsonResponse(http.StatusOK, map[string]any{"results": []any{
			map[string]any{"id": "other", "title": []any{map[string]any{"plain_text": "杂项"}}},
			map[string]any{"id": "db-papers", "title": []any{
				map[string]any{"plain_text": "📄 "},
				map[string]any{"plain_text": "论文投稿管理"},
			}},
		}}), nil
	})

	id, res := client.FindDatabase(context.Background(), "论文投稿")
	assert.Equal(t, FailureNone, res.Kind)
	assert.Equal(t, "db-papers", id)
}

func TestQueryAndUpdatePaths(t *testing.T) {
	var seen []string
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		return jsonResponse(http.StatusOK, map[string]any{"id": "ok", "results": []any{}}), nil
	})

	ctx := context.Background()
	client.QueryDatabase(ctx, "db1", Equals(PropManuscript, "rich_text", "JES-1"))
	client.UpdatePage(ctx, "page1", map[string]any{PropStatus: Select("大修")})
	client.CreatePage(ctx, "db1", map[string]any{PropPaperTitle: Title("t")})

	assert.Equal(t, []string{
		"POST /v1/databases/db1/query",
		"PATCH /v1/pages/page1",
		"POST /v1/pages",
	}, seen)
}
