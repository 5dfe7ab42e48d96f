// Package metadata scrapes a page's title and description for link cards.
package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/cache"
)

const (
	DefaultTTL = time.Hour
	maxBody    = 2 << 20
)

var (
	titleRE       = regexp.MustCompile(`(?i)<title>(.*?)</title>`)
	descriptionRE = regexp.MustCompile(`(?i)<meta\s+name=["']description["']\s+content=["'](.*?)["']`)
)

type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Fetcher struct {
	client *http.Client
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

type Option func(*Fetcher)

func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.cache = c
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 10 * time.Second},
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns nil when the page cannot be read. Missing tags yield empty
// strings.
func (f *Fetcher) Fetch(ctx context.Context, url string) *Metadata {
	key := cacheKey(url)
	if cached, ok := cache.GetJSON[Metadata](ctx, f.cache, key); ok {
		return &cached
	}
	md, err := f.fetch(ctx, url)
	if err != nil {
		f.logger.Warn("fetch metadata failed", zap.String("url", url), zap.Error(err))
		return nil
	}
	if err := cache.SetJSON(ctx, f.cache, key, md, f.ttl); err != nil {
		f.logger.Debug("cache metadata failed", zap.Error(err))
	}
	return &md
}

func (f *Fetcher) fetch(ctx context.Context, url string) (Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Metadata{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Metadata{}, err
	}
	return Parse(string(body)), nil
}

func Parse(page string) Metadata {
	md := Metadata{}
	if m := titleRE.FindStringSubmatch(page); m != nil {
		md.Title = html.UnescapeString(m[1])
	}
	if m := descriptionRE.FindStringSubmatch(page); m != nil {
		md.Description = html.UnescapeString(m[1])
	}
	return md
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "metadata:" + hex.EncodeToString(sum[:])
}
