package normalize

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/cache"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/metrics"
)

const (
	imageCheckTimeout = 5 * time.Second
	imageUserAgent    = "Mozilla/5.0 (compatible; ImageValidator/1.0)"
	ProxyImagePath    = "/api/proxy-image"
	FinalURLHeader    = "X-Final-URL"
)

type Image struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type Validation struct {
	Valid         bool   `json:"valid"`
	RedirectedURL string `json:"redirected_url,omitempty"`
}

type ImageValidator struct {
	client    *http.Client
	proxyBase string
	timeout   time.Duration
	cache     cache.Cache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

type ImageValidatorOption func(*ImageValidator)

func WithHTTPClient(client *http.Client) ImageValidatorOption {
	return func(v *ImageValidator) {
		v.client = client
	}
}

func WithCache(c cache.Cache, ttl time.Duration) ImageValidatorOption {
	return func(v *ImageValidator) {
		v.cache = c
		v.cacheTTL = ttl
	}
}

func WithLogger(logger *zap.Logger) ImageValidatorOption {
	return func(v *ImageValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithTimeout(timeout time.Duration) ImageValidatorOption {
	return func(v *ImageValidator) {
		v.timeout = timeout
	}
}

// NewImageValidator builds a validator whose proxy fallback targets
// proxyBase + ProxyImagePath. An empty proxyBase disables the fallback.
func NewImageValidator(proxyBase string, opts ...ImageValidatorOption) *ImageValidator {
	v := &ImageValidator{
		client:    &http.Client{},
		proxyBase: strings.TrimRight(proxyBase, "/"),
		timeout:   imageCheckTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks that rawURL answers a HEAD request with an image. Only
// answers from the image host or the proxy are cached; transport failures
// and timeouts are retried on the next call.
func (v *ImageValidator) Validate(ctx context.Context, rawURL string) Validation {
	key := "image:" + rawURL
	if cached, ok := cache.GetJSON[Validation](ctx, v.cache, key); ok {
		return cached
	}
	result, settled := v.check(ctx, rawURL)
	if result.Valid {
		metrics.ImageValidations.WithLabelValues("valid").Inc()
	} else {
		metrics.ImageValidations.WithLabelValues("invalid").Inc()
	}
	if !settled {
		return result
	}
	if err := cache.SetJSON(ctx, v.cache, key, result, v.cacheTTL); err != nil {
		v.logger.Debug("image validation cache write failed", zap.Error(err))
	}
	return result
}

// check reports whether the outcome came from an HTTP answer.
func (v *ImageValidator) check(ctx context.Context, rawURL string) (Validation, bool) {
	resp, err := v.head(ctx, rawURL, true)
	if err != nil {
		if strings.Contains(err.Error(), "CORS") {
			v.logger.Debug("image blocked by CORS, trying proxy", zap.String("url", rawURL))
			return v.viaProxy(ctx, rawURL, "")
		}
		v.logger.Debug("image validation error", zap.String("url", rawURL), zap.Error(err))
		return Validation{}, false
	}
	_ = resp.Body.Close()

	redirected := ""
	if resp.Request != nil && resp.Request.URL != nil {
		if final := resp.Request.URL.String(); final != rawURL {
			redirected = final
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Validation{}, true
	case resp.StatusCode == http.StatusForbidden:
		v.logger.Debug("image forbidden, trying proxy", zap.String("url", rawURL))
		result, _ := v.viaProxy(ctx, rawURL, redirected)
		return result, true
	case resp.StatusCode >= 400:
		return Validation{}, true
	}
	if !isImage(resp.Header.Get("Content-Type")) {
		return Validation{}, true
	}
	return Validation{Valid: true, RedirectedURL: redirected}, true
}

func (v *ImageValidator) viaProxy(ctx context.Context, rawURL string, redirected string) (Validation, bool) {
	if v.proxyBase == "" {
		return Validation{}, false
	}
	proxyURL := v.proxyBase + ProxyImagePath + "?url=" + url.QueryEscape(rawURL)
	resp, err := v.head(ctx, proxyURL, false)
	if err != nil {
		v.logger.Debug("proxy validation failed", zap.String("url", rawURL), zap.Error(err))
		return Validation{}, false
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !isImage(resp.Header.Get("Content-Type")) {
		return Validation{}, true
	}
	if final := resp.Header.Get(FinalURLHeader); final != "" {
		redirected = final
	}
	return Validation{Valid: true, RedirectedURL: redirected}, true
}

func (v *ImageValidator) head(ctx context.Context, target string, browserHeaders bool) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return nil, err
	}
	if browserHeaders {
		req.Header.Set("Accept", "image/*")
		req.Header.Set("User-Agent", imageUserAgent)
	}
	return v.client.Do(req)
}

// FilterImages sanitizes, de-duplicates and validates images concurrently.
// Invalid images and images without a description are dropped; order is kept.
func (v *ImageValidator) FilterImages(ctx context.Context, images []Image) []Image {
	deduped := Dedupe(images, func(img Image) string { return img.URL })
	results := make([]*Image, len(deduped))
	var wg sync.WaitGroup
	for i, img := range deduped {
		wg.Add(1)
		go func(i int, img Image) {
			defer wg.Done()
			sanitized := SanitizeURL(img.URL)
			validation := v.Validate(ctx, sanitized)
			if !validation.Valid || img.Description == "" {
				return
			}
			final := sanitized
			if validation.RedirectedURL != "" {
				final = validation.RedirectedURL
			}
			results[i] = &Image{URL: final, Description: img.Description}
		}(i, img)
	}
	wg.Wait()

	out := make([]Image, 0, len(results))
	for _, img := range results {
		if img != nil {
			out = append(out, *img)
		}
	}
	return out
}

func isImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
