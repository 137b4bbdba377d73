package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "itincal/internal/log"
)

const (
	defaultFeedTimeout = 15 * time.Second
	maxFeedBytes       = 16 << 20
	feedParallelism    = 4
)

var errNotModified = errors.New("not modified")

// Feed is one subscribed calendar.
type Feed struct {
	ID  string
	URL string
}

// Payload is the calendar body of a feed. Cached is set when the body came
// from disk, either because the server answered 304 or because it failed.
type Payload struct {
	Feed   Feed
	Body   []byte
	Cached bool
}

// Client downloads feeds with conditional requests and falls back to the
// last good copy on disk, so a flaky calendar server does not empty a day.
type Client struct {
	http  *http.Client
	cache diskCache
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a Client caching bodies under cacheDir.
func NewClient(cacheDir string, opts ...ClientOption) *Client {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	c := &Client{
		http:  &http.Client{Timeout: defaultFeedTimeout},
		cache: diskCache{root: cacheDir},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get fetches one feed.
func (c *Client) Get(ctx context.Context, f Feed) (Payload, error) {
	if f.URL == "" {
		return Payload{}, fmt.Errorf("feed %s: empty URL", f.ID)
	}
	cached, _ := c.cache.load(f.URL)

	body, v, err := c.download(ctx, f.URL, cached.Validators)
	switch {
	case err == nil:
		if serr := c.cache.store(cacheEntry{URL: f.URL, Validators: v, body: body}); serr != nil {
			appLog.Warn("ics cache write failed", "feed", f.ID, "err", serr)
		}
		appLog.Debug("ics feed downloaded", "feed", f.ID, "bytes", len(body))
		return Payload{Feed: f, Body: body}, nil

	case len(cached.body) == 0:
		return Payload{}, fmt.Errorf("feed %s (%s): %w", f.ID, appLog.RedactURL(f.URL), err)

	case errors.Is(err, errNotModified):
		appLog.Debug("ics feed not modified", "feed", f.ID)

	default:
		appLog.Warn("ics feed unavailable, serving cached copy",
			"feed", f.ID, "url", appLog.RedactURL(f.URL), "err", err, "stored_at", cached.StoredAt)
	}
	return Payload{Feed: f, Body: cached.body, Cached: true}, nil
}

func (c *Client) download(ctx context.Context, url string, v validators) ([]byte, validators, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, validators{}, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")
	req.Header.Set("User-Agent", "itincal/1.0")
	v.apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, validators{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return nil, v, errNotModified
	default:
		return nil, validators{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, validators{}, err
	}
	return body, validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// GetAll fetches feeds concurrently. Payloads keep the order of feeds; a feed
// that yields nothing is left out and its error joined into the result.
func (c *Client) GetAll(ctx context.Context, feeds []Feed) ([]Payload, error) {
	got := make([]*Payload, len(feeds))
	errs := make([]error, len(feeds))

	var g errgroup.Group
	g.SetLimit(feedParallelism)
	for i, f := range feeds {
		i, f := i, f
		g.Go(func() error {
			p, err := c.Get(ctx, f)
			if err != nil {
				errs[i] = err
				return nil
			}
			got[i] = &p
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Payload, 0, len(feeds))
	for _, p := range got {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, errors.Join(errs...)
}
