// Package notiontest runs an in-memory stand-in for the subset of the Notion
// API the sync code uses.
package notiontest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

type Page struct {
	ID         string
	DatabaseID string
	Properties map[string]any
}

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	nextID    int
	databases map[string]string // id -> title
	pages     []*Page
	requests  []string
	// FailPages makes page create/update answer 500.
	FailPages bool
}

func NewServer() *Server {
	s := &Server{databases: map[string]string{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddDatabase registers an existing database and returns its id.
func (s *Server) AddDatabase(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addDatabaseLocked(title)
}

// AddPage seeds a row.
func (s *Server) AddPage(databaseID string, props map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("page-%d", s.nextID)
	s.pages = append(s.pages, &Page{ID: id, DatabaseID: databaseID, Properties: roundTrip(props)})
	return id
}

// Requests lists "METHOD /path" for every call received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many received requests start with prefix.
func (s *Server) Count(prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// Pages returns the rows of the database whose title contains title.
func (s *Server) Pages(title string) []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Page
	for _, p := range s.pages {
		if strings.Contains(s.databases[p.DatabaseID], title) {
			out = append(out, *p)
		}
	}
	return out
}

func (s *Server) addDatabaseLocked(title string) string {
	s.nextID++
	id := fmt.Sprintf("db-%d", s.nextID)
	s.databases[id] = title
	return id
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1")
	blob, _ := io.ReadAll(r.Body)
	var body map[string]any
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"object": "error", "code": "invalid_json", "message": err.Error()})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+path)

	switch {
	case r.Method == http.MethodPost && path == "/search":
		query, _ := body["query"].(string)
		var results []any
		for id, title := range s.databases {
			if strings.Contains(title, query) {
				results = append(results, map[string]any{
					"object": "database",
					"id":     id,
					"title":  []any{map[string]any{"plain_text": title}},
				})
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})

	case r.Method == http.MethodPost && path == "/databases":
		title := ""
		if parts, ok := body["title"].([]any); ok && len(parts) > 0 {
			title = textOf(parts)
		}
		id := s.addDatabaseLocked(title)
		writeJSON(w, http.StatusOK, map[string]any{"object": "database", "id": id})

	case r.Method == http.MethodPost && strings.HasPrefix(path, "/databases/") && strings.HasSuffix(path, "/query"):
		dbID := strings.TrimSuffix(strings.TrimPrefix(path, "/databases/"), "/query")
		if _, ok := s.databases[dbID]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"object": "error", "code": "object_not_found"})
			return
		}
		filter, _ := body["filter"].(map[string]any)
		results := []any{}
		for _, p := range s.pages {
			if p.DatabaseID == dbID && matches(p.Properties, filter) {
				results = append(results, map[string]any{"object": "page", "id": p.ID})
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})

	case r.Method == http.MethodPost && path == "/pages":
		if s.FailPages {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"object": "error", "code": "internal_server_error"})
			return
		}
		parent, _ := body["parent"].(map[string]any)
		dbID, _ := parent["database_id"].(string)
		if _, ok := s.databases[dbID]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"object": "error", "code": "object_not_found"})
			return
		}
		props, _ := body["properties"].(map[string]any)
		s.nextID++
		page := &Page{ID: fmt.Sprintf("page-%d", s.nextID), DatabaseID: dbID, Properties: props}
		s.pages = append(s.pages, page)
		writeJSON(w, http.StatusOK, map[string]any{"object": "page", "id": page.ID})

	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/pages/"):
		if s.FailPages {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"object": "error", "code": "internal_server_error"})
			return
		}
		id := strings.TrimPrefix(path, "/pages/")
		for _, p := range s.pages {
			if p.ID == id {
				props, _ := body["properties"].(map[string]any)
				for k, v := range props {
					p.Properties[k] = v
				}
				writeJSON(w, http.StatusOK, map[string]any{"object": "page", "id": id})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"object": "error", "code": "object_not_found"})

	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"object": "error", "code": "invalid_request_url"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func roundTrip(props map[string]any) map[string]any {
	blob, _ := json.Marshal(props)
	var out map[string]any
	_ = json.Unmarshal(blob, &out)
	return out
}

// Value flattens a property value to a comparable scalar.
func Value(prop any) any {
	m, ok := prop.(map[string]any)
	if !ok {
		return nil
	}
	for kind, v := range m {
		switch kind {
		case "title", "rich_text":
			parts, _ := v.([]any)
			return textOf(parts)
		case "select":
			sel, _ := v.(map[string]any)
			name, _ := sel["name"].(string)
			return name
		case "date":
			d, _ := v.(map[string]any)
			start, _ := d["start"].(string)
			return start
		case "checkbox", "number":
			return v
		}
	}
	return nil
}

func textOf(parts []any) string {
	var b strings.Builder
	for _, p := range parts {
		m, _ := p.(map[string]any)
		if t, ok := m["text"].(map[string]any); ok {
			s, _ := t["content"].(string)
			b.WriteString(s)
			continue
		}
		s, _ := m["plain_text"].(string)
		b.WriteString(s)
	}
	return b.String()
}

func matches(props map[string]any, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	if list, ok := filter["and"].([]any); ok {
		for _, f := range list {
			sub, _ := f.(map[string]any)
			if !matches(props, sub) {
				return false
			}
		}
		return true
	}
	name, _ := filter["property"].(string)
	got := fmt.Sprint(Value(props[name]))
	for kind, cond := range filter {
		if kind == "property" {
			continue
		}
		c, _ := cond.(map[string]any)
		if want, ok := c["equals"]; ok {
			return got == fmt.Sprint(want)
		}
		if prefix, ok := c["starts_with"].(string); ok {
			return strings.HasPrefix(got, prefix)
		}
	}
	return false
}
