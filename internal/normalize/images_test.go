package normalize

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/cache"
)

type imageServer struct {
	*httptest.Server
	proxyHits atomic.Int32
}

func newImageServer(t *testing.T, proxyOK bool) *imageServer {
	t.Helper()
	s := &imageServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		require.Equal(t, "image/*", r.Header.Get("Accept"))
		require.Contains(t, r.Header.Get("User-Agent"), "ImageValidator/1.0")
		w.Header().Set("Content-Type", "image/png")
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/forbidden.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/broken.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	})
	mux.HandleFunc("/moved.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok.png", http.StatusFound)
	})
	mux.HandleFunc(ProxyImagePath, func(w http.ResponseWriter, r *http.Request) {
		s.proxyHits.Add(1)
		if !proxyOK {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set(FinalURLHeader, "https://cdn.example.com/final.jpg")
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestValidate_StatusClassification(t *testing.T) {
	srv := newImageServer(t, false)
	v := NewImageValidator(srv.URL)
	ctx := context.Background()

	require.Equal(t, Validation{Valid: true}, v.Validate(ctx, srv.URL+"/ok.png"))
	require.False(t, v.Validate(ctx, srv.URL+"/missing.png").Valid)
	require.False(t, v.Validate(ctx, srv.URL+"/broken.png").Valid)
	require.False(t, v.Validate(ctx, srv.URL+"/page.html").Valid)
	require.Zero(t, srv.proxyHits.Load())
}

func TestValidate_ForbiddenTriesProxyOnce(t *testing.T) {
	srv := newImageServer(t, true)
	v := NewImageValidator(srv.URL)

	got := v.Validate(context.Background(), srv.URL+"/forbidden.png")
	require.True(t, got.Valid)
	require.Equal(t, "https://cdn.example.com/final.jpg", got.RedirectedURL)
	require.EqualValues(t, 1, srv.proxyHits.Load())
}

func TestValidate_ForbiddenProxyFails(t *testing.T) {
	srv := newImageServer(t, false)
	v := NewImageValidator(srv.URL)

	require.False(t, v.Validate(context.Background(), srv.URL+"/forbidden.png").Valid)
	require.EqualValues(t, 1, srv.proxyHits.Load())
}

func TestValidate_ForbiddenWithoutProxy(t *testing.T) {
	srv := newImageServer(t, true)
	v := NewImageValidator("")

	require.False(t, v.Validate(context.Background(), srv.URL+"/forbidden.png").Valid)
	require.Zero(t, srv.proxyHits.Load())
}

func TestValidate_TracksRedirect(t *testing.T) {
	srv := newImageServer(t, false)
	v := NewImageValidator(srv.URL)

	got := v.Validate(context.Background(), srv.URL+"/moved.png")
	require.True(t, got.Valid)
	require.Equal(t, srv.URL+"/ok.png", got.RedirectedURL)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestValidate_CORSErrorTriesProxy(t *testing.T) {
	srv := newImageServer(t, true)
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == ProxyImagePath {
			return http.DefaultTransport.RoundTrip(r)
		}
		return nil, errors.New("blocked by CORS policy")
	})}
	v := NewImageValidator(srv.URL, WithHTTPClient(client))

	got := v.Validate(context.Background(), "https://blocked.example.com/a.png")
	require.True(t, got.Valid)
	require.EqualValues(t, 1, srv.proxyHits.Load())
}

func TestValidate_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()
	v := NewImageValidator("", WithTimeout(20*time.Millisecond))
	require.False(t, v.Validate(context.Background(), slow.URL+"/a.png").Valid)
}

func TestValidate_UsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/webp")
	}))
	defer srv.Close()
	v := NewImageValidator("", WithCache(cache.NewMemory(time.Minute), time.Minute))

	require.True(t, v.Validate(context.Background(), srv.URL+"/a.webp").Valid)
	require.True(t, v.Validate(context.Background(), srv.URL+"/a.webp").Valid)
	require.EqualValues(t, 1, hits.Load())
}

func TestValidate_DoesNotCacheTimeouts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(200 * time.Millisecond):
			}
			return
		}
		w.Header().Set("Content-Type", "image/png")
	}))
	defer srv.Close()
	v := NewImageValidator("",
		WithTimeout(50*time.Millisecond),
		WithCache(cache.NewMemory(time.Minute), time.Minute),
	)

	require.False(t, v.Validate(context.Background(), srv.URL+"/slow.png").Valid)
	require.True(t, v.Validate(context.Background(), srv.URL+"/slow.png").Valid)
	require.EqualValues(t, 2, hits.Load())
}

func TestValidate_CachesHTTPFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	v := NewImageValidator("", WithCache(cache.NewMemory(time.Minute), time.Minute))

	require.False(t, v.Validate(context.Background(), srv.URL+"/gone.png").Valid)
	require.False(t, v.Validate(context.Background(), srv.URL+"/gone.png").Valid)
	require.EqualValues(t, 1, hits.Load())
}

func TestFilterImages(t *testing.T) {
	srv := newImageServer(t, false)
	v := NewImageValidator(srv.URL)

	out := v.FilterImages(context.Background(), []Image{
		{URL: srv.URL + "/ok.png", Description: "harbour at dusk"},
		{URL: srv.URL + "/missing.png", Description: "gone"},
		{URL: "http://127.0.0.1:1/x.png", Description: "unreachable"},
		{URL: srv.URL + "/page.html", Description: "same host, dropped by dedupe"},
	})
	require.Equal(t, []Image{{URL: srv.URL + "/ok.png", Description: "harbour at dusk"}}, out)
}

func TestFilterImages_DropsEmptyDescription(t *testing.T) {
	srv := newImageServer(t, false)
	v := NewImageValidator(srv.URL)

	out := v.FilterImages(context.Background(), []Image{{URL: srv.URL + "/ok.png"}})
	require.Empty(t, out)
}
