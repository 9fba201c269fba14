package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timelogbot/internal/domain"
)

type fakePage struct {
	id      string
	space   string
	title   string
	body    string
	version int
}

// fakeWiki is a minimal Confluence REST server.
type fakeWiki struct {
	t          *testing.T
	mu         sync.Mutex
	spaces     map[string]string // name -> key
	pages      map[string]*fakePage
	nextID     int
	spaceCalls int
	spaceCap   int // max spaces per listing page, 0: all at once
	authHeader string
	failStatus int
}

func newFakeWiki(t *testing.T) *fakeWiki {
	return &fakeWiki{
		t:      t,
		spaces: map[string]string{"NBIS Alpha": "ALPHA", "NBIS Beta": "BETA"},
		pages:  make(map[string]*fakePage),
		nextID: 100,
	}
}

func (f *fakeWiki) addPage(spaceKey, title, body string, version int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprint(f.nextID)
	f.pages[id] = &fakePage{id: id, space: spaceKey, title: title, body: body, version: version}
}

func (f *fakeWiki) page(spaceKey string) *fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pages {
		if p.space == spaceKey {
			return p
		}
	}
	return nil
}

func (f *fakeWiki) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authHeader
}

func (f *fakeWiki) spaceListings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spaceCalls
}

func (f *fakeWiki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authHeader = r.Header.Get("Authorization")

	if f.failStatus != 0 {
		http.Error(w, "failure", f.failStatus)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/rest/api/space":
		f.spaceCalls++
		names := make([]string, 0, len(f.spaces))
		for name := range f.spaces {
			names = append(names, name)
		}
		sort.Strings(names)

		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if f.spaceCap > 0 && limit > f.spaceCap {
			limit = f.spaceCap
		}
		results := []map[string]string{}
		for i := start; i < len(names) && i < start+limit; i++ {
			results = append(results, map[string]string{"key": f.spaces[names[i]], "name": names[i]})
		}
		resp := map[string]any{"results": results, "size": len(results)}
		if end := start + len(results); end < len(names) {
			resp["_links"] = map[string]string{"next": fmt.Sprintf("/rest/api/space?start=%d&limit=%d", end, limit)}
		}
		_ = json.NewEncoder(w).Encode(resp)

	case r.Method == http.MethodGet && r.URL.Path == "/rest/api/content":
		q := r.URL.Query()
		assert.Equal(f.t, "body.storage,version", q.Get("expand"))
		results := []map[string]any{}
		for _, p := range f.pages {
			if p.space == q.Get("spaceKey") && p.title == q.Get("title") {
				results = append(results, map[string]any{
					"id":      p.id,
					"type":    "page",
					"title":   p.title,
					"version": map[string]int{"number": p.version},
					"body":    map[string]any{"storage": map[string]string{"value": p.body, "representation": "storage"}},
				})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})

	case r.Method == http.MethodPost && r.URL.Path == "/rest/api/content":
		var c content
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&c)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.nextID++
		id := fmt.Sprint(f.nextID)
		f.pages[id] = &fakePage{id: id, space: c.Space.Key, title: c.Title, body: c.Body.Storage.Value, version: 1}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"id":%q}`, id)

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/rest/api/content/"):
		id := strings.TrimPrefix(r.URL.Path, "/rest/api/content/")
		p, ok := f.pages[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var c content
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&c)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if c.Version == nil || c.Version.Number != p.version+1 {
			http.Error(w, "version conflict", http.StatusConflict)
			return
		}
		p.body = c.Body.Storage.Value
		p.version = c.Version.Number
		fmt.Fprintf(w, `{"id":%q}`, id)

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, wiki *fakeWiki, user string) *Client {
	t.Helper()
	srv := httptest.NewServer(wiki)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{
		APIURL: srv.URL + "/rest/api/",
		User:   user,
		Token:  "tok",
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Token: "x"})
	assert.Error(t, err)
	_, err = NewClient(context.Background(), Config{APIURL: "https://wiki.example.org"})
	assert.Error(t, err)
}

func TestReadPage(t *testing.T) {
	wiki := newFakeWiki(t)
	wiki.addPage("ALPHA", DefaultPageTitle, "<p>intro</p><hr />old", 4)
	wiki.addPage("ALPHA", "Other page", "ignored", 1)
	c := newTestClient(t, wiki, "bot")

	got, err := c.ReadPage(context.Background(), "NBIS Alpha")
	require.NoError(t, err)
	assert.Equal(t, "<p>intro</p><hr />old", got)
}

func TestReadPage_Missing(t *testing.T) {
	c := newTestClient(t, newFakeWiki(t), "bot")

	_, err := c.ReadPage(context.Background(), "NBIS Beta")
	assert.ErrorIs(t, err, domain.ErrPageNotFound)
}

func TestWritePage_UpdatesWithNextVersion(t *testing.T) {
	wiki := newFakeWiki(t)
	wiki.addPage("ALPHA", DefaultPageTitle, "old", 4)
	c := newTestClient(t, wiki, "bot")

	require.NoError(t, c.WritePage(context.Background(), "NBIS Alpha", "new"))

	p := wiki.page("ALPHA")
	require.NotNil(t, p)
	assert.Equal(t, "new", p.body)
	assert.Equal(t, 5, p.version)
}

func TestWritePage_CreatesMissingPage(t *testing.T) {
	wiki := newFakeWiki(t)
	c := newTestClient(t, wiki, "bot")

	require.NoError(t, c.WritePage(context.Background(), "NBIS Beta", "<hr />body"))

	p := wiki.page("BETA")
	require.NotNil(t, p)
	assert.Equal(t, DefaultPageTitle, p.title)
	assert.Equal(t, "<hr />body", p.body)

	got, err := c.ReadPage(context.Background(), "NBIS Beta")
	require.NoError(t, err)
	assert.Equal(t, "<hr />body", got)
}

func TestSpaceKeys_FetchedOnce(t *testing.T) {
	wiki := newFakeWiki(t)
	c := newTestClient(t, wiki, "bot")

	for i := 0; i < 3; i++ {
		_, _ = c.ReadPage(context.Background(), "NBIS Alpha")
	}
	assert.Equal(t, 1, wiki.spaceListings())
}

func TestSpaceKeys_FollowsNextLinks(t *testing.T) {
	wiki := newFakeWiki(t)
	wiki.spaceCap = 25
	for i := 1; i <= 30; i++ {
		wiki.spaces[fmt.Sprintf("NBIS P%02d", i)] = fmt.Sprintf("K%02d", i)
	}
	wiki.addPage("K28", DefaultPageTitle, "p28 page", 1)
	c := newTestClient(t, wiki, "bot")

	got, err := c.ReadPage(context.Background(), "NBIS P28")
	require.NoError(t, err)
	assert.Equal(t, "p28 page", got)
	assert.Equal(t, 2, wiki.spaceListings())
}

func TestSpaceKeys_UnknownNameIsKey(t *testing.T) {
	wiki := newFakeWiki(t)
	wiki.addPage("GAMMA", DefaultPageTitle, "gamma page", 1)
	c := newTestClient(t, wiki, "bot")

	got, err := c.ReadPage(context.Background(), "GAMMA")
	require.NoError(t, err)
	assert.Equal(t, "gamma page", got)
}

func TestAuth(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		wiki := newFakeWiki(t)
		c := newTestClient(t, wiki, "bot")
		_, _ = c.ReadPage(context.Background(), "NBIS Alpha")
		assert.True(t, strings.HasPrefix(wiki.lastAuth(), "Basic "))
	})

	t.Run("bearer", func(t *testing.T) {
		wiki := newFakeWiki(t)
		c := newTestClient(t, wiki, "")
		_, _ = c.ReadPage(context.Background(), "NBIS Alpha")
		assert.Equal(t, "Bearer tok", wiki.lastAuth())
	})
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status        int
		wantTransport bool
	}{
		{status: http.StatusServiceUnavailable, wantTransport: true},
		{status: http.StatusTooManyRequests, wantTransport: true},
		{status: http.StatusConflict, wantTransport: true},
		{status: http.StatusForbidden, wantTransport: false},
		{status: http.StatusBadRequest, wantTransport: false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			wiki := newFakeWiki(t)
			wiki.failStatus = tt.status
			c := newTestClient(t, wiki, "bot")

			err := c.WritePage(context.Background(), "NBIS Alpha", "x")
			require.Error(t, err)
			assert.Equal(t, tt.wantTransport, domain.IsTransportError(err))
			assert.NotErrorIs(t, err, domain.ErrPageNotFound)
		})
	}
}
