// Package confluence reads and writes the report page of a Confluence space
// through the REST content API.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/roach88/timelogbot/internal/domain"
)

const (
	// DefaultPageTitle is the title of the report page in every space.
	DefaultPageTitle = "TimeLog"

	defaultTimeout = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// APIURL is the REST root, e.g. https://wiki.example.org/rest/api.
	APIURL string

	// User and Token select basic auth. With an empty User, Token is sent
	// as a bearer token (personal access token).
	User  string
	Token string

	// PageTitle is the report page title. Default: DefaultPageTitle
	PageTitle string

	// HTTPClient overrides the base client. Bearer auth wraps its transport.
	HTTPClient *http.Client
}

// Client implements engine.WikiStore.
//
// Spaces are addressed by display name ("NBIS Alpha"). The name to key
// mapping is fetched once and cached; a name that matches no space is used
// as the key itself.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	apiURL     string
	user       string
	token      string
	title      string
	httpClient *http.Client

	mu        sync.Mutex
	spaceKeys map[string]string
}

// NewClient creates a Confluence client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("confluence API URL required")
	}
	if cfg.Token == "" {
		return nil, errors.New("confluence API token required")
	}

	title := cfg.PageTitle
	if title == "" {
		title = DefaultPageTitle
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.User == "" {
		base := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		bearer := oauth2.NewClient(base, ts)
		bearer.Timeout = httpClient.Timeout
		httpClient = bearer
	}

	return &Client{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		user:       cfg.User,
		token:      cfg.Token,
		title:      title,
		httpClient: httpClient,
	}, nil
}

type content struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Space   *space `json:"space,omitempty"`
	Version *struct {
		Number int `json:"number"`
	} `json:"version,omitempty"`
	Body struct {
		Storage struct {
			Value          string `json:"value"`
			Representation string `json:"representation"`
		} `json:"storage"`
	} `json:"body"`
}

type space struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

type contentList struct {
	Results []content `json:"results"`
}

type spaceList struct {
	Results []space `json:"results"`
	Size    int     `json:"size"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// ReadPage returns the storage-format body of the report page in space,
// or domain.ErrPageNotFound when the space has no such page.
func (c *Client) ReadPage(ctx context.Context, spaceName string) (string, error) {
	page, err := c.find(ctx, spaceName)
	if err != nil {
		return "", err
	}
	return page.Body.Storage.Value, nil
}

// WritePage replaces the report page of space with text, creating the page
// when it does not exist yet.
func (c *Client) WritePage(ctx context.Context, spaceName, text string) error {
	key, err := c.spaceKey(ctx, spaceName)
	if err != nil {
		return err
	}

	out := content{Type: "page", Title: c.title, Space: &space{Key: key}}
	out.Body.Storage.Value = text
	out.Body.Storage.Representation = "storage"

	existing, err := c.find(ctx, spaceName)
	switch {
	case errors.Is(err, domain.ErrPageNotFound):
		return c.do(ctx, "confluence.create", http.MethodPost, "/content", out, nil)
	case err != nil:
		return err
	}

	out.ID = existing.ID
	next := 1
	if existing.Version != nil {
		next = existing.Version.Number + 1
	}
	out.Version = &struct {
		Number int `json:"number"`
	}{Number: next}
	return c.do(ctx, "confluence.update", http.MethodPut, "/content/"+url.PathEscape(existing.ID), out, nil)
}

func (c *Client) find(ctx context.Context, spaceName string) (content, error) {
	key, err := c.spaceKey(ctx, spaceName)
	if err != nil {
		return content{}, err
	}

	q := url.Values{}
	q.Set("title", c.title)
	q.Set("spaceKey", key)
	q.Set("type", "page")
	q.Set("expand", "body.storage,version")

	var list contentList
	if err := c.do(ctx, "confluence.find", http.MethodGet, "/content?"+q.Encode(), nil, &list); err != nil {
		return content{}, err
	}
	if len(list.Results) == 0 {
		return content{}, fmt.Errorf("%q in space %q: %w", c.title, spaceName, domain.ErrPageNotFound)
	}
	return list.Results[0], nil
}

func (c *Client) spaceKey(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.spaceKeys == nil {
		keys, err := c.listSpaces(ctx)
		if err != nil {
			return "", err
		}
		c.spaceKeys = keys
	}
	if key, ok := c.spaceKeys[name]; ok {
		return key, nil
	}
	return name, nil
}

func (c *Client) listSpaces(ctx context.Context) (map[string]string, error) {
	const pageSize = 500
	keys := make(map[string]string)

	// The server may return fewer results than asked for; only a missing
	// next link ends the listing.
	for start := 0; ; {
		var list spaceList
		path := fmt.Sprintf("/space?start=%d&limit=%d", start, pageSize)
		if err := c.do(ctx, "confluence.spaces", http.MethodGet, path, nil, &list); err != nil {
			return nil, err
		}
		for _, s := range list.Results {
			keys[s.Name] = s.Key
		}
		start += len(list.Results)
		if len(list.Results) == 0 || list.Links.Next == "" {
			return keys, nil
		}
	}
}

// do sends one request. in is encoded as the JSON body when non-nil; the
// response is decoded into out when non-nil.
//
// Status mapping:
//   - 409 (version conflict), 429, 5xx, network errors: *domain.TransportError
//   - other non-2xx: plain error (not retried)
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewTransportError(op, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return domain.NewTransportError(op, resp.StatusCode, errors.New(readSnippet(resp.Body)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, readSnippet(resp.Body))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "empty body"
	}
	return s
}
