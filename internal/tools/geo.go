package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type googleGeocodeResponse struct {
	Status  string          `json:"status"`
	Results []googleGeocode `json:"results"`
}

type googleGeocode struct {
	PlaceID           string   `json:"place_id"`
	FormattedAddress  string   `json:"formatted_address"`
	Types             []string `json:"types"`
	AddressComponents []struct {
		LongName  string   `json:"long_name"`
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	} `json:"address_components"`
	Geometry struct {
		Location LatLng          `json:"location"`
		Viewport json.RawMessage `json:"viewport"`
	} `json:"geometry"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type mapboxReverseResponse struct {
	Features []struct {
		ID         string          `json:"id"`
		Geometry   json.RawMessage `json:"geometry"`
		Properties struct {
			Name          string          `json:"name"`
			NamePreferred string          `json:"name_preferred"`
			FullAddress   string          `json:"full_address"`
			FeatureType   string          `json:"feature_type"`
			Context       json.RawMessage `json:"context"`
			Coordinates   json.RawMessage `json:"coordinates"`
			BBox          json.RawMessage `json:"bbox"`
		} `json:"properties"`
	} `json:"features"`
}

type PlaceFeature struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	FormattedAddress  string          `json:"formatted_address"`
	Geometry          any             `json:"geometry"`
	FeatureType       string          `json:"feature_type"`
	AddressComponents any             `json:"address_components,omitempty"`
	Viewport          json.RawMessage `json:"viewport,omitempty"`
	PlaceID           string          `json:"place_id,omitempty"`
	Context           json.RawMessage `json:"context,omitempty"`
	Coordinates       json.RawMessage `json:"coordinates,omitempty"`
	BBox              json.RawMessage `json:"bbox,omitempty"`
	Source            string          `json:"source"`
}

type FindPlaceResult struct {
	Features          []PlaceFeature `json:"features"`
	GoogleAttribution string         `json:"google_attribution"`
	MapboxAttribution string         `json:"mapbox_attribution"`
}

type pointGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type findPlaceArgs struct {
	Query       string    `json:"query"`
	Coordinates []float64 `json:"coordinates"`
}

func findPlaceTool(deps Deps) Definition {
	return Definition{
		Name:        "find_place",
		Description: "Find a place using Google Maps API for forward geocoding and Mapbox for reverse geocoding.",
		Schema: Schema{Fields: []Field{
			{Name: "query", Type: TypeString, Required: true, Description: "The search query for forward geocoding"},
			{
				Name: "coordinates", Type: TypeArray, Required: true, MinItems: 2,
				Description: "Array of [latitude, longitude] for reverse geocoding",
				Items:       &Field{Type: TypeNumber},
			},
		}},
		Execute: func(ctx context.Context, rc RequestContext, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[findPlaceArgs](raw)
			if err != nil {
				return nil, err
			}
			return findPlace(ctx, deps, args)
		},
	}
}

func findPlace(ctx context.Context, deps Deps, args findPlaceArgs) (FindPlaceResult, error) {
	if len(args.Coordinates) < 2 {
		return FindPlaceResult{}, errors.New("coordinates must be [latitude, longitude]")
	}
	var google googleGeocodeResponse
	var mapbox mapboxReverseResponse

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		google, err = geocode(gctx, deps, args.Query)
		return err
	})
	group.Go(func() error {
		query := url.Values{}
		query.Set("longitude", formatCoord(args.Coordinates[1]))
		query.Set("latitude", formatCoord(args.Coordinates[0]))
		query.Set("access_token", deps.Keys.Mapbox)
		endpoint := deps.Endpoints.Mapbox + "/search/geocode/v6/reverse?" + query.Encode()
		return deps.HTTP.GetJSON(gctx, "mapbox", endpoint, nil, &mapbox)
	})
	if err := group.Wait(); err != nil {
		return FindPlaceResult{}, err
	}

	features := []PlaceFeature{}
	if google.Status == "OK" {
		for _, r := range google.Results {
			features = append(features, PlaceFeature{
				ID:                r.PlaceID,
				Name:              strings.Split(r.FormattedAddress, ",")[0],
				FormattedAddress:  r.FormattedAddress,
				Geometry:          pointGeometry{Type: "Point", Coordinates: []float64{r.Geometry.Location.Lng, r.Geometry.Location.Lat}},
				FeatureType:       lo.FirstOr(r.Types, ""),
				AddressComponents: r.AddressComponents,
				Viewport:          r.Geometry.Viewport,
				PlaceID:           r.PlaceID,
				Source:            "google",
			})
		}
	}
	for _, f := range mapbox.Features {
		features = append(features, PlaceFeature{
			ID:               f.ID,
			Name:             lo.Ternary(f.Properties.NamePreferred != "", f.Properties.NamePreferred, f.Properties.Name),
			FormattedAddress: f.Properties.FullAddress,
			Geometry:         f.Geometry,
			FeatureType:      f.Properties.FeatureType,
			Context:          f.Properties.Context,
			Coordinates:      f.Properties.Coordinates,
			BBox:             f.Properties.BBox,
			Source:           "mapbox",
		})
	}
	return FindPlaceResult{
		Features:          features,
		GoogleAttribution: "Powered by Google Maps Platform",
		MapboxAttribution: "Powered by Mapbox",
	}, nil
}

func geocode(ctx context.Context, deps Deps, address string) (googleGeocodeResponse, error) {
	query := url.Values{}
	query.Set("address", address)
	query.Set("key", deps.Keys.GoogleMaps)
	var out googleGeocodeResponse
	endpoint := deps.Endpoints.GoogleMaps + "/maps/api/geocode/json?" + query.Encode()
	err := deps.HTTP.GetJSON(ctx, "google_maps", endpoint, nil, &out)
	return out, err
}

type textSearchArgs struct {
	Query    string  `json:"query"`
	Location string  `json:"location"`
	Radius   float64 `json:"radius"`
}

type mapboxPlace struct {
	Text      string    `json:"text"`
	PlaceName string    `json:"place_name"`
	Center    []float64 `json:"center"`
}

type mapboxPlacesResponse struct {
	Features []mapboxPlace `json:"features"`
}

type TextSearchPlace struct {
	Name             string `json:"name"`
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location LatLng `json:"location"`
	} `json:"geometry"`
}

type TextSearchResult struct {
	Results []TextSearchPlace `json:"results"`
}

func textSearchTool(deps Deps) Definition {
	return Definition{
		Name:        "text_search",
		Description: "Perform a text-based search for places using Mapbox API.",
		Schema: Schema{Fields: []Field{
			{Name: "query", Type: TypeString, Required: true, Description: "The search query (e.g., '123 main street')."},
			{Name: "location", Type: TypeString, Description: "The location to center the search as 'longitude,latitude' (e.g., '-71.186966,42.3675294')."},
			{Name: "radius", Type: TypeNumber, Description: "The radius of the search area in meters (max 50000).", Minimum: Float(0), Maximum: Float(50000)},
		}},
		Execute: func(ctx context.Context, rc RequestContext, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[textSearchArgs](raw)
			if err != nil {
				return nil, err
			}
			return textSearch(ctx, deps, args)
		},
	}
}

func textSearch(ctx context.Context, deps Deps, args textSearchArgs) (TextSearchResult, error) {
	query := url.Values{}
	query.Set("types", "poi")
	center, hasCenter := parseLngLat(args.Location)
	if hasCenter {
		query.Set("proximity", formatCoord(center.Lng)+","+formatCoord(center.Lat))
	}
	query.Set("access_token", deps.Keys.Mapbox)
	endpoint := deps.Endpoints.Mapbox + "/geocoding/v5/mapbox.places/" + url.PathEscape(args.Query) + ".json?" + query.Encode()

	var resp mapboxPlacesResponse
	if err := deps.HTTP.GetJSON(ctx, "mapbox", endpoint, nil, &resp); err != nil {
		return TextSearchResult{}, err
	}

	features := resp.Features
	if hasCenter && args.Radius > 0 {
		radiusDegrees := args.Radius / 111320
		features = lo.Filter(features, func(f mapboxPlace, _ int) bool {
			if len(f.Center) < 2 {
				return false
			}
			return math.Hypot(f.Center[0]-center.Lng, f.Center[1]-center.Lat) <= radiusDegrees
		})
	}

	out := TextSearchResult{Results: []TextSearchPlace{}}
	for _, f := range features {
		if len(f.Center) < 2 {
			continue
		}
		place := TextSearchPlace{Name: f.Text, FormattedAddress: f.PlaceName}
		place.Geometry.Location = LatLng{Lat: f.Center[1], Lng: f.Center[0]}
		out.Results = append(out.Results, place)
	}
	return out, nil
}

// parseLngLat reads "lng,lat".
func parseLngLat(value string) (LatLng, bool) {
	parts := strings.Split(strings.TrimSpace(value), ",")
	if len(parts) != 2 {
		return LatLng{}, false
	}
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLng != nil || errLat != nil {
		return LatLng{}, false
	}
	return LatLng{Lat: lat, Lng: lng}, true
}
