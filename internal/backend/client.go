// Package backend is the REST client for the task backend that owns projects,
// columns and cards.
package backend

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

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/gosuda/pulse/internal/auth"
	"github.com/gosuda/pulse/internal/domain"
)

const maxBodySize = 8 << 20

// ErrUnexpectedStatus is returned for backend responses that map to no domain error.
var ErrUnexpectedStatus = errors.New("backend: unexpected response status")

// Options configure a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	RPS         float64
	Burst       int
	TokenSource oauth2.TokenSource
	// Location interprets timestamps sent without a zone. Defaults to time.Local.
	Location *time.Location
	// Transport is the base round tripper under the bearer injector.
	Transport http.RoundTripper
}

// Client reads projects, columns and cards from the backend. It implements
// domain.ProjectSource and domain.TaskSource.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	loc     *time.Location
}

var (
	_ domain.ProjectSource = (*Client)(nil)
	_ domain.TaskSource    = (*Client)(nil)
)

// New creates a Client. Requests carry the bearer token from opts.TokenSource
// and are throttled to opts.RPS with opts.Burst.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend.New: invalid base url %q", opts.BaseURL)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.TokenSource != nil {
		transport = &oauth2.Transport{Source: opts.TokenSource, Base: transport}
	}

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	return &Client{
		base:    base,
		http:    &http.Client{Transport: transport, Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		loc:     loc,
	}, nil
}

// ListProjects returns the projects visible to the stored credential.
func (c *Client) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	var wire []wireProject
	if err := c.getList(ctx, "/api/projects", nil, "projects", &wire); err != nil {
		return nil, fmt.Errorf("backend.Client.ListProjects: %w", err)
	}

	out := make([]*domain.Project, 0, len(wire))
	for i := range wire {
		out = append(out, wire[i].toDomain(c.loc))
	}
	return out, nil
}

// ListColumns returns the columns of a project in backend order.
func (c *Client) ListColumns(ctx context.Context, projectID int64) ([]*domain.Column, error) {
	var wire []wireColumn
	path := "/api/projects/" + strconv.FormatInt(projectID, 10) + "/columns"
	if err := c.getList(ctx, path, nil, "columns", &wire); err != nil {
		return nil, fmt.Errorf("backend.Client.ListColumns: %w", err)
	}

	out := make([]*domain.Column, 0, len(wire))
	for i := range wire {
		col := wire[i].toDomain()
		if col.ProjectID == 0 {
			col.ProjectID = projectID
		}
		out = append(out, col)
	}
	return out, nil
}

// ListTasks returns the active cards of a project.
func (c *Client) ListTasks(ctx context.Context, projectID int64) ([]*domain.Task, error) {
	var wire []wireCard
	path := "/api/projects/" + strconv.FormatInt(projectID, 10) + "/cards"
	query := url.Values{"status": {"active"}}
	if err := c.getList(ctx, path, query, "cards", &wire); err != nil {
		return nil, fmt.Errorf("backend.Client.ListTasks: %w", err)
	}

	out := make([]*domain.Task, 0, len(wire))
	for i := range wire {
		task := wire[i].toDomain(c.loc)
		if task.ProjectID == 0 {
			task.ProjectID = projectID
		}
		out = append(out, task)
	}
	return out, nil
}

// getList fetches path and decodes a list from a bare array, a
// {"<key>": [...]} object or a {success, message, data} envelope.
func (c *Client) getList(ctx context.Context, path string, query url.Values, key string, out any) error {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := decodeList(body, key, out); err != nil {
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, auth.ErrNoCredential) {
			return nil, fmt.Errorf("GET %s: %w", path, domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("GET %s: reading body: %w", path, err)
	}

	log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend: request")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("GET %s: %s: %w", path, errorDetail(body, resp.Status), domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %s: %w", path, errorDetail(body, resp.Status), domain.ErrNotFound)
	default:
		return nil, fmt.Errorf("GET %s: %s: %w", path, errorDetail(body, resp.Status), ErrUnexpectedStatus)
	}
}

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeList(body []byte, key string, out any) error {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding list: %w", err)
		}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if raw, ok := obj["data"]; ok {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("decoding envelope: %w", err)
		}
		if env.Success != nil && !*env.Success {
			return fmt.Errorf("backend reported failure: %s: %w", env.Message, ErrUnexpectedStatus)
		}
		return decodeList(raw, key, out)
	}

	raw, ok := obj[key]
	if !ok {
		return fmt.Errorf("decoding response: no %q list in object", key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// errorDetail extracts a readable message from an error body.
func errorDetail(body []byte, fallback string) string {
	var e struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if s, ok := e.Detail.(string); ok && s != "" {
			return s
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return fallback
}
