/**
 * @description
 * Client for the official live race site.
 * One shared HTTP session with a browser User-Agent, a per-request timeout,
 * retries on transport errors and a token-bucket limiter to bound upstream load.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2
 * - github.com/PuerkitoBio/goquery
 * - golang.org/x/time/rate
 */

package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/models"
	"golang.org/x/time/rate"
)

// Live site pages, relative to the race base URL.
const (
	PageOdds2T     = "odds2tf"
	PageOddsWin    = "oddstf"
	PageRaceList   = "racelist"
	PageRaceResult = "raceresult"
)

// Client fetches and parses live site pages.
type Client struct {
	baseURL string
	http    *resty.Client
	limiter *rate.Limiter
	metrics *metrics.PipelineMetrics
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at another host, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records request outcomes on pm.
func WithMetrics(pm *metrics.PipelineMetrics) Option {
	return func(c *Client) {
		c.metrics = pm
	}
}

// NewClient creates a live site client.
func NewClient(cfg config.ScraperConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 2
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetHeader("Accept-Language", "ja,en;q=0.8")
	// retry only transport failures; status codes are classified below
	httpClient.AddRetryCondition(func(_ *resty.Response, err error) bool {
		return err != nil
	})

	c := &Client{
		baseURL: cfg.BaseURL,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), 2),
		metrics: metrics.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fetch loads a race page and parses it into a document.
func (c *Client) fetch(ctx context.Context, page string, key models.RaceKey) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"rno": strconv.Itoa(key.RaceNumber),
			"jcd": key.VenueCode,
			"hd":  key.Date.Compact(),
		}).
		Get(c.baseURL + "/" + page)
	if err != nil {
		c.metrics.RecordScrape(page, "error")
		return nil, fmt.Errorf("%w: %s %s: %v", errs.ErrUpstreamUnavailable, page, key, err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusNotFound:
		c.metrics.RecordScrape(page, "absent")
		return nil, fmt.Errorf("%w: %s %s", errs.ErrUpstreamAbsent, page, key)
	case status < 200 || status >= 300:
		c.metrics.RecordScrape(page, "status_"+strconv.Itoa(status))
		return nil, fmt.Errorf("%w: %s %s returned %d", errs.ErrUpstreamUnavailable, page, key, status)
	}
	c.metrics.RecordScrape(page, "ok")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", errs.ErrParseMalformed, page, key, err)
	}
	return doc, nil
}
