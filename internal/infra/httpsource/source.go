// Package httpsource pages through JSON backends that take offset and limit
// query parameters.
package httpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
	"github.com/edumarques81/ampcast-core/internal/version"
)

// ErrStatus is wrapped by errors for non 2xx responses.
var ErrStatus = errors.New("unexpected HTTP status")

// Response is the body a backend returns for one page. Total is optional;
// zero means unknown.
type Response struct {
	Items []*media.Item `json:"items"`
	Total int           `json:"total"`
}

// Config configures a Source.
type Config struct {
	// RequestsPerSecond caps the request rate. Zero means unlimited.
	RequestsPerSecond float64
	OffsetParam       string
	LimitParam        string
	Timeout           time.Duration
	Header            http.Header
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		OffsetParam:       "offset",
		LimitParam:        "limit",
		Timeout:           15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OffsetParam == "" {
		c.OffsetParam = d.OffsetParam
	}
	if c.LimitParam == "" {
		c.LimitParam = d.LimitParam
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Client shares a rate limit between all page functions it creates.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Source returns a page function reading endpoint from offset zero. Each
// call continues where the previous one stopped.
func (c *Client) Source(endpoint string) pager.FetchFunc[*media.Item] {
	var (
		mu     sync.Mutex
		offset int
	)
	return func(ctx context.Context, pageSize int) (pager.Page[*media.Item], error) {
		mu.Lock()
		defer mu.Unlock()

		resp, err := c.fetch(ctx, endpoint, offset, pageSize)
		if err != nil {
			return pager.Page[*media.Item]{}, err
		}
		offset += len(resp.Items)

		atEnd := len(resp.Items) < pageSize || (resp.Total > 0 && offset >= resp.Total)
		return pager.Page[*media.Item]{Items: resp.Items, Total: resp.Total, AtEnd: atEnd}, nil
	}
}

func (c *Client) fetch(ctx context.Context, endpoint string, offset, limit int) (*Response, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set(c.cfg.OffsetParam, strconv.Itoa(offset))
	q.Set(c.cfg.LimitParam, strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, vs := range c.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", u.Host, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("%w: %d from %s", ErrStatus, res.StatusCode, u.Path)
	}

	var body Response
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}
	for _, item := range body.Items {
		if item.MediaType == "" {
			item.MediaType = media.MediaTypeAudio
		}
	}

	log.Debug().
		Str("path", u.Path).
		Int("offset", offset).
		Int("count", len(body.Items)).
		Dur("took", time.Since(start)).
		Msg("Fetched page")
	return &body, nil
}
