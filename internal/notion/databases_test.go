package notion

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore map[string]string

func (m memoryStore) GetMetadata(key string) (*string, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m memoryStore) SetMetadata(key, value string) error {
	m[key] = value
	return nil
}

func TestDatabasesCreatesWhenMissing(t *testing.T) {
	var calls []string
	var created map[string]any
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/v1/search":
			return jsonResponse(http.StatusOK, map[string]any{"results": []any{}}), nil
		case "/v1/databases":
			blob, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(blob, &created))
			return jsonResponse(http.StatusOK, map[string]any{"id": "db-new"}), nil
		}
		t.Fatalf("unexpected path %s", r.URL.Path)
		return nil, nil
	})

	store := memoryStore{}
	dbs := NewDatabases(client, "parent-1", store, zerolog.Nop())

	id, err := dbs.ID(context.Background(), Papers)
	require.NoError(t, err)
	assert.Equal(t, "db-new", id)
	assert.Equal(t, "db-new", store["notion.db.papers"])

	parent := created["parent"].(map[string]any)
	assert.Equal(t, "parent-1", parent["page_id"])
	props := created["properties"].(map[string]any)
	assert.Contains(t, props, PropManuscript)
	assert.Contains(t, props, PropLastUpdate)

	// second lookup is served from memory
	id, err = dbs.ID(context.Background(), Papers)
	require.NoError(t, err)
	assert.Equal(t, "db-new", id)
	assert.Len(t, calls, 2)
}

func TestDatabasesUsesStoredID(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected, got %s", r.URL.Path)
		return nil, nil
	})
	store := memoryStore{"notion.db.emails": "db-emails"}
	dbs := NewDatabases(client, "parent-1", store, zerolog.Nop())

	id, err := dbs.ID(context.Background(), Emails)
	require.NoError(t, err)
	assert.Equal(t, "db-emails", id)
}

func TestDatabasesFindsExisting(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		return jsonResponse(http.StatusOK, map[string]any{"results": []any{
			map[string]any{"id": "db-bill", "title": []any{map[string]any{"plain_text": "💳 账单管理"}}},
		}}), nil
	})
	store := memoryStore{}
	dbs := NewDatabases(client, "", store, zerolog.Nop())

	id, err := dbs.ID(context.Background(), Billing)
	require.NoError(t, err)
	assert.Equal(t, "db-bill", id)
	assert.Equal(t, "db-bill", store["notion.db.billing"])
}

func TestDatabasesWithoutParentCannotCreate(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, map[string]any{"results": []any{}}), nil
	})
	dbs := NewDatabases(client, "", memoryStore{}, zerolog.Nop())

	_, err := dbs.ID(context.Background(), Reviews)
	assert.ErrorIs(t, err, ErrNoParentPage)
}

func TestDatabasesForget(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, map[string]any{"results": []any{
			map[string]any{"id": "db-2", "title": []any{map[string]any{"plain_text": "📝 审稿任务管理"}}},
		}}), nil
	})
	store := memoryStore{"notion.db.reviews": "db-1"}
	dbs := NewDatabases(client, "", store, zerolog.Nop())

	id, err := dbs.ID(context.Background(), Reviews)
	require.NoError(t, err)
	assert.Equal(t, "db-1", id)

	dbs.Forget(Reviews)
	id, err = dbs.ID(context.Background(), Reviews)
	require.NoError(t, err)
	assert.Equal(t, "db-2", id)
}
