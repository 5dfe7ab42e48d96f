package tools

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/normalize"
)

type Endpoints struct {
	Tavily        string
	OpenWeather   string
	GoogleMaps    string
	Mapbox        string
	TripAdvisor   string
	AviationStack string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Tavily:        "https://api.tavily.com",
		OpenWeather:   "https://api.openweathermap.org",
		GoogleMaps:    "https://maps.googleapis.com",
		Mapbox:        "https://api.mapbox.com",
		TripAdvisor:   "https://api.content.tripadvisor.com",
		AviationStack: "https://api.aviationstack.com",
	}
}

type Keys struct {
	Tavily        string
	OpenWeather   string
	GoogleMaps    string
	Mapbox        string
	TripAdvisor   string
	AviationStack string
}

// TimezoneFinder resolves an IANA zone offline. tzf's finder satisfies it.
type TimezoneFinder interface {
	GetTimezoneName(lng float64, lat float64) string
}

type Deps struct {
	HTTP      *HTTPClient
	Endpoints Endpoints
	Keys      Keys
	Images    *normalize.ImageValidator
	LLM       llm.Provider
	Zones     TimezoneFinder
	Logger    *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.HTTP == nil {
		d.HTTP = NewHTTPClient(nil, 0, d.Logger)
	}
	if d.Images == nil {
		d.Images = normalize.NewImageValidator("")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	def := DefaultEndpoints()
	d.Endpoints.Tavily = trimBase(d.Endpoints.Tavily, def.Tavily)
	d.Endpoints.OpenWeather = trimBase(d.Endpoints.OpenWeather, def.OpenWeather)
	d.Endpoints.GoogleMaps = trimBase(d.Endpoints.GoogleMaps, def.GoogleMaps)
	d.Endpoints.Mapbox = trimBase(d.Endpoints.Mapbox, def.Mapbox)
	d.Endpoints.TripAdvisor = trimBase(d.Endpoints.TripAdvisor, def.TripAdvisor)
	d.Endpoints.AviationStack = trimBase(d.Endpoints.AviationStack, def.AviationStack)
	return d
}

// Builtin returns every travel tool wired to deps.
func Builtin(deps Deps) []Definition {
	deps = deps.withDefaults()
	return []Definition{
		webSearchTool(deps),
		weatherTool(deps),
		findPlaceTool(deps),
		textSearchTool(deps),
		nearbySearchTool(deps),
		trackFlightTool(deps),
		datetimeTool(),
		translateTool(deps),
	}
}

func trimBase(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		value = fallback
	}
	return strings.TrimRight(value, "/")
}
