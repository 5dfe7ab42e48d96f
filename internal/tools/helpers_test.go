package tools

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testDeps(t *testing.T, mux *http.ServeMux) Deps {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return Deps{
		HTTP: NewHTTPClient(server.Client(), 1000, nil),
		Endpoints: Endpoints{
			Tavily:        server.URL,
			OpenWeather:   server.URL,
			GoogleMaps:    server.URL,
			Mapbox:        server.URL,
			TripAdvisor:   server.URL,
			AviationStack: server.URL,
		},
		Keys: Keys{
			Tavily:        "tavily-key",
			OpenWeather:   "weather-key",
			GoogleMaps:    "google-key",
			Mapbox:        "mapbox-token",
			TripAdvisor:   "ta-key",
			AviationStack: "as-key",
		},
	}.withDefaults()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
