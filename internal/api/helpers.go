package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/normalize"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type suggestRequest struct {
	Messages []clientMessage `json:"messages"`
}

func (s *Server) suggestQuestions(w http.ResponseWriter, r *http.Request) {
	if s.questions == nil {
		http.Error(w, "suggestions unavailable", http.StatusServiceUnavailable)
		return
	}
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	questions, err := s.questions.Questions(r.Context(), toModelMessages(req.Messages))
	if err != nil {
		s.logger.Warn("suggest questions failed", zap.Error(err))
		writeJSONStatus(w, map[string]string{"error": "could not suggest questions"}, http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"questions": questions})
}

func (s *Server) fetchMetadata(w http.ResponseWriter, r *http.Request) {
	target, ok := httpURL(r.URL.Query().Get("url"))
	if !ok {
		http.Error(w, "url must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	if s.metadata == nil {
		writeJSONStatus(w, nil, http.StatusNotFound)
		return
	}
	md := s.metadata.Fetch(r.Context(), target)
	if md == nil {
		writeJSONStatus(w, nil, http.StatusNotFound)
		return
	}
	writeJSON(w, md)
}

// proxyImage fetches an image for the browser from this origin. Only
// public hosts are reachable and only raster or other non-SVG image types
// are relayed. The final URL after redirects is reported in X-Final-URL.
func (s *Server) proxyImage(w http.ResponseWriter, r *http.Request) {
	target, ok := httpURL(r.URL.Query().Get("url"))
	if !ok {
		http.Error(w, "url must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, nil)
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "image/*")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("image proxy upstream failed", zap.String("url", target), zap.Error(err))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		http.Error(w, http.StatusText(resp.StatusCode), resp.StatusCode)
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if !relayableImage(contentType) {
		s.logger.Debug("image proxy refused content type", zap.String("url", target), zap.String("content_type", contentType))
		http.Error(w, "upstream is not an image", http.StatusUnsupportedMediaType)
		return
	}
	if resp.ContentLength > s.maxImageBytes {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}

	if resp.Request != nil && resp.Request.URL != nil {
		w.Header().Set(normalize.FinalURLHeader, resp.Request.URL.String())
	}
	for _, header := range []string{"Content-Type", "Content-Length", "Cache-Control", "Last-Modified", "ETag"} {
		if value := resp.Header.Get(header); value != "" {
			w.Header().Set(header, value)
		}
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, io.LimitReader(resp.Body, s.maxImageBytes))
}

// relayableImage accepts image/* except SVG, which can carry script.
func relayableImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}

func httpURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	return parsed.String(), true
}

func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		d = 15 * time.Second
	}
	return time.NewTicker(d)
}
