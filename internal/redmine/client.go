// Package redmine reads time entries and project metadata from the Redmine
// REST API.
package redmine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/timelogbot/internal/domain"
)

const (
	// DefaultBudgetField is the project custom field holding ordered hours.
	DefaultBudgetField = "Hours ordered"

	defaultPageSize = 100
	defaultTimeout  = 30 * time.Second

	// 5 requests per second with small bursts keeps a full run well under
	// Redmine's default throttling.
	defaultRateLimit = 5.0
	defaultBurst     = 2
)

// Config configures a Client.
type Config struct {
	// BaseURL is the Redmine root, e.g. https://projects.example.org.
	BaseURL string

	// APIKey is sent as X-Redmine-API-Key.
	APIKey string

	// BudgetField names the project custom field holding ordered hours.
	// Default: DefaultBudgetField
	BudgetField string

	// RequestsPerSecond limits outbound requests. Default: 5
	RequestsPerSecond float64

	// PageSize is the time_entries page size. Default: 100 (Redmine's max).
	PageSize int

	// HTTPClient overrides the client used for requests. Default: a client
	// with a 30 second timeout.
	HTTPClient *http.Client
}

// Client implements aggregate.Source and aggregate.InfoSource.
//
// Thread-safety: Client is safe for concurrent use. All goroutines share
// one rate limiter.
type Client struct {
	baseURL     string
	apiKey      string
	budgetField string
	pageSize    int
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a Redmine client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("redmine base URL required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("redmine API key required")
	}

	budgetField := cfg.BudgetField
	if budgetField == "" {
		budgetField = DefaultBudgetField
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	limit := cfg.RequestsPerSecond
	if limit <= 0 {
		limit = defaultRateLimit
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		budgetField: budgetField,
		pageSize:    pageSize,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(rate.Limit(limit), defaultBurst),
	}, nil
}

type timeEntriesResponse struct {
	TimeEntries []struct {
		ID      int     `json:"id"`
		Hours   float64 `json:"hours"`
		SpentOn string  `json:"spent_on"`
	} `json:"time_entries"`
	TotalCount int `json:"total_count"`
}

type projectResponse struct {
	Project struct {
		ID           int       `json:"id"`
		Identifier   string    `json:"identifier"`
		Name         string    `json:"name"`
		CreatedOn    time.Time `json:"created_on"`
		CustomFields []struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		} `json:"custom_fields"`
	} `json:"project"`
}

// FetchEntries returns every time entry of project, following pagination
// until a short page. An unknown project returns domain.ErrNoData.
func (c *Client) FetchEntries(ctx context.Context, project string) ([]domain.TimeEntry, error) {
	var entries []domain.TimeEntry

	for offset := 0; ; {
		q := url.Values{}
		q.Set("project_id", project)
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(c.pageSize))

		var page timeEntriesResponse
		if err := c.get(ctx, "redmine.time_entries", "/time_entries.json?"+q.Encode(), &page); err != nil {
			return nil, err
		}

		for _, te := range page.TimeEntries {
			day, err := time.Parse("2006-01-02", te.SpentOn)
			if err != nil {
				return nil, fmt.Errorf("%w: time entry %d: spent_on %q", domain.ErrInvalidEntry, te.ID, te.SpentOn)
			}
			entries = append(entries, domain.TimeEntry{Project: project, Date: day, Hours: te.Hours})
		}

		// Servers may cap limit below the requested page size, so advance by
		// what was returned and trust total_count over the page length.
		n := len(page.TimeEntries)
		offset += n
		if n == 0 {
			break
		}
		if page.TotalCount > 0 {
			if offset >= page.TotalCount {
				break
			}
			continue
		}
		if n < c.pageSize {
			break
		}
	}

	return entries, nil
}

// FetchInfo returns the project's creation date and ordered hours. A missing
// or empty budget field yields a zero budget.
func (c *Client) FetchInfo(ctx context.Context, project string) (domain.ProjectInfo, error) {
	var resp projectResponse
	if err := c.get(ctx, "redmine.project", "/projects/"+url.PathEscape(project)+".json", &resp); err != nil {
		return domain.ProjectInfo{}, err
	}

	info := domain.ProjectInfo{}
	if !resp.Project.CreatedOn.IsZero() {
		info.StartDate = domain.Day(resp.Project.CreatedOn)
	}

	for _, cf := range resp.Project.CustomFields {
		if cf.Name != c.budgetField {
			continue
		}
		budget, err := parseBudget(cf.Value)
		if err != nil {
			return domain.ProjectInfo{}, fmt.Errorf("project %q: field %q: %w", project, c.budgetField, err)
		}
		info.Budget = budget
	}
	return info, nil
}

func parseBudget(v any) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return val, nil
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.ReplaceAll(val, ",", "."), 64)
	default:
		return 0, fmt.Errorf("unexpected value %v", v)
	}
}

// get performs a rate-limited GET and decodes the JSON body into out.
//
// Status mapping:
//   - 404: domain.ErrNoData
//   - 429, 5xx, network errors: *domain.TransportError
//   - other non-2xx: plain error (not retried)
func (c *Client) get(ctx context.Context, op, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewTransportError(op, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrNoData)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.NewTransportError(op, resp.StatusCode, errors.New(readSnippet(resp.Body)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, readSnippet(resp.Body))
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
