// Package catalog is the HTTP client for the internship catalog backend.
package catalog

import (
	"bytes"
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

	"github.com/google/uuid"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/models"
)

// Backend routes.
const (
	PathSearch       = "/etudiant/All"
	PathByIDs        = "/etudiant/stages/byIds"
	PathCheckStatus  = "/etudiant/check-email"
	PathApplications = "/etudiant/stage_postuler2"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultPageSize = 5
	maxErrorBody    = 4096
)

// query keys owned by Search; filters cannot override them
var reservedParams = map[string]bool{"search": true, "page": true, "limit": true}

// TokenSource yields the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config holds the configuration for the catalog client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	PageSize   int
	Limiter    *RateLimiter
	Log        *logger.Logger
}

// Client talks to the catalog backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	pageSize   int
	limiter    *RateLimiter
	tokens     TokenSource
	log        *logger.Logger
}

// NewClient creates a catalog client.
func NewClient(cfg Config, tokens TokenSource) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("catalog: base url is required")
	}
	if tokens == nil {
		return nil, errors.New("catalog: token source is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(0, 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		timeout:    timeout,
		pageSize:   pageSize,
		limiter:    limiter,
		tokens:     tokens,
		log:        cfg.Log.Component("catalog"),
	}, nil
}

// SearchParams selects one page of the catalog.
type SearchParams struct {
	Term    string
	Page    int
	Limit   int
	Filters map[string]string
}

// SearchResult is one page of postings.
type SearchResult struct {
	Jobs       []models.Job      `json:"stages"`
	Pagination models.Pagination `json:"pagination"`
}

// Search fetches one page of postings. The term is trimmed before sending.
// A 404 comes back as an error matching apperr.ErrNotFound.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit <= 0 {
		limit = c.pageSize
	}

	q := url.Values{}
	for k, v := range params.Filters {
		if !reservedParams[k] {
			q.Set(k, v)
		}
	}
	q.Set("search", strings.TrimSpace(params.Term))
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out SearchResult
	if err := c.do(ctx, "search", http.MethodGet, PathSearch, q, nil, &out); err != nil {
		return nil, err
	}

	if out.Jobs == nil {
		out.Jobs = []models.Job{}
	}
	if out.Pagination.CurrentPage < 1 {
		out.Pagination.CurrentPage = page
	}
	return &out, nil
}

// ResolveByIDs fetches the postings for ids in one call. The result follows
// the order of ids, holds at most one record per id and silently skips ids
// the backend no longer knows. Empty input makes no request.
func (c *Client) ResolveByIDs(ctx context.Context, ids []models.JobID) ([]models.Job, error) {
	if len(ids) == 0 {
		return []models.Job{}, nil
	}

	body := struct {
		IDs []models.JobID `json:"ids"`
	}{ids}

	var jobs []models.Job
	if err := c.do(ctx, "resolve by ids", http.MethodPost, PathByIDs, nil, body, &jobs); err != nil {
		return nil, err
	}

	byID := make(map[models.JobID]models.Job, len(jobs))
	for _, j := range jobs {
		if _, seen := byID[j.ID]; !seen {
			byID[j.ID] = j
		}
	}

	out := make([]models.Job, 0, len(ids))
	for _, id := range ids {
		if j, ok := byID[id]; ok {
			out = append(out, j)
			delete(byID, id)
		}
	}
	return out, nil
}

// CheckApplied reports whether email already applied to the posting.
func (c *Client) CheckApplied(ctx context.Context, email string, id models.JobID) (bool, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("stageId", id.String())

	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, "check status", http.MethodGet, PathCheckStatus, q, nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// Applications lists the applications the current student submitted.
// A 404 means none and comes back as apperr.ErrNotFound.
func (c *Client) Applications(ctx context.Context) ([]models.Application, error) {
	var out struct {
		Postulant []models.Application `json:"postulant"`
	}
	if err := c.do(ctx, "applications", http.MethodGet, PathApplications, nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Postulant == nil {
		out.Postulant = []models.Application{}
	}
	return out.Postulant, nil
}

// do runs one authenticated request and decodes the JSON answer into out.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the caller gave up: not a network problem
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%s: %w", op, context.Canceled)
		}
		c.log.Warn().Err(err).Str("op", op).Str("request_id", requestID).Msg("request failed")
		return apperr.Network(op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.log.Debug().
		Str("op", op).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(started)).
		Msg("catalog request")

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.Pause(retryAfter(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apperr.HTTPError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return apperr.Network(op, reqCtx.Err())
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// retryAfter parses a Retry-After header in seconds, defaulting to one second.
func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
