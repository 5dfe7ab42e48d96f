package tools

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultNearbyRadius = 30000

var tripAdvisorHeaders = map[string]string{
	"origin":  "https://mplx.local",
	"referer": "https://mplx.local",
}

type nearbyArgs struct {
	Location  string  `json:"location"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Type      string  `json:"type"`
	Radius    float64 `json:"radius"`
}

type tripAdvisorNearby struct {
	Data []struct {
		LocationID string    `json:"location_id"`
		Name       string    `json:"name"`
		Distance   flexFloat `json:"distance"`
		Bearing    string    `json:"bearing"`
		Latitude   flexFloat `json:"latitude"`
		Longitude  flexFloat `json:"longitude"`
		AddressObj struct {
			AddressString string `json:"address_string"`
		} `json:"address_obj"`
	} `json:"data"`
}

type tripAdvisorDetails struct {
	Latitude    flexFloat `json:"latitude"`
	Longitude   flexFloat `json:"longitude"`
	Rating      flexFloat `json:"rating"`
	PriceLevel  string    `json:"price_level"`
	Description string    `json:"description"`
	Phone       string    `json:"phone"`
	Website     string    `json:"website"`
	NumReviews  flexFloat `json:"num_reviews"`
	Cuisine     []struct {
		Name string `json:"name"`
	} `json:"cuisine"`
	Hours *struct {
		Periods     []Period `json:"periods"`
		WeekdayText []string `json:"weekday_text"`
	} `json:"hours"`
	Source *struct {
		Name string `json:"name"`
	} `json:"source"`
}

type tripAdvisorPhotos struct {
	Data []struct {
		Caption string `json:"caption"`
		Images  map[string]struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"data"`
}

type Photo struct {
	Thumbnail string `json:"thumbnail,omitempty"`
	Small     string `json:"small,omitempty"`
	Medium    string `json:"medium"`
	Large     string `json:"large,omitempty"`
	Original  string `json:"original,omitempty"`
	Caption   string `json:"caption"`
}

type NearbyPlace struct {
	Name          string   `json:"name"`
	Location      LatLng   `json:"location"`
	Timezone      string   `json:"timezone"`
	PlaceID       string   `json:"place_id"`
	Vicinity      string   `json:"vicinity"`
	Distance      float64  `json:"distance"`
	Bearing       string   `json:"bearing"`
	Type          string   `json:"type"`
	Rating        float64  `json:"rating"`
	PriceLevel    string   `json:"price_level"`
	Cuisine       string   `json:"cuisine"`
	Description   string   `json:"description"`
	Phone         string   `json:"phone"`
	Website       string   `json:"website"`
	ReviewsCount  int      `json:"reviews_count"`
	IsClosed      bool     `json:"is_closed"`
	Hours         []string `json:"hours"`
	NextOpenClose *string  `json:"next_open_close"`
	NextDay       int      `json:"next_day"`
	Periods       []Period `json:"periods"`
	Photos        []Photo  `json:"photos"`
	Source        string   `json:"source"`
}

type NearbyResult struct {
	Results []NearbyPlace `json:"results"`
	Center  LatLng        `json:"center"`
}

func nearbySearchTool(deps Deps) Definition {
	return Definition{
		Name:        "nearby_search",
		Description: "Search for nearby places, such as restaurants or hotels based on the details given.",
		Schema: Schema{Fields: []Field{
			{Name: "location", Type: TypeString, Required: true, Description: "The location name given by user."},
			{Name: "latitude", Type: TypeNumber, Required: true, Description: "The latitude of the location."},
			{Name: "longitude", Type: TypeNumber, Required: true, Description: "The longitude of the location."},
			{Name: "type", Type: TypeString, Required: true, Description: "The type of place to search for (restaurants, hotels, attractions, geos)."},
			{Name: "radius", Type: TypeNumber, Default: defaultNearbyRadius, Description: "The radius in meters (max 50000, default 30000)."},
		}},
		Execute: func(ctx context.Context, rc RequestContext, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[nearbyArgs](raw)
			if err != nil {
				return nil, err
			}
			return nearbySearch(ctx, deps, rc, args)
		},
	}
}

func nearbySearch(ctx context.Context, deps Deps, rc RequestContext, args nearbyArgs) (NearbyResult, error) {
	if args.Radius <= 0 {
		args.Radius = defaultNearbyRadius
	}
	center := LatLng{Lat: args.Latitude, Lng: args.Longitude}
	if geo, err := geocode(ctx, deps, args.Location); err != nil {
		deps.Logger.Warn("nearby geocode failed, using provided coordinates", zap.Error(err))
	} else if len(geo.Results) > 0 {
		loc := geo.Results[0].Geometry.Location
		center = LatLng{Lat: truncateCoord(loc.Lat), Lng: truncateCoord(loc.Lng)}
	}

	query := url.Values{}
	query.Set("latLong", formatCoord(center.Lat)+","+formatCoord(center.Lng))
	query.Set("category", args.Type)
	query.Set("radius", strconv.FormatFloat(args.Radius, 'f', -1, 64))
	query.Set("language", "en")
	query.Set("key", deps.Keys.TripAdvisor)
	var nearby tripAdvisorNearby
	endpoint := deps.Endpoints.TripAdvisor + "/api/v1/location/nearby_search?" + query.Encode()
	if err := deps.HTTP.GetJSON(ctx, "tripadvisor", endpoint, tripAdvisorHeaders, &nearby); err != nil {
		return NearbyResult{}, err
	}
	if len(nearby.Data) == 0 {
		return NearbyResult{Results: []NearbyPlace{}, Center: center}, nil
	}

	var mu sync.Mutex
	places := make([]NearbyPlace, 0, len(nearby.Data))
	group, gctx := errgroup.WithContext(ctx)
	for _, item := range nearby.Data {
		if item.LocationID == "" {
			deps.Logger.Debug("skipping place without location id", zap.String("name", item.Name))
			continue
		}
		group.Go(func() error {
			details, err := placeDetails(gctx, deps, item.LocationID)
			if err != nil {
				deps.Logger.Debug("skipping place without details", zap.String("name", item.Name), zap.Error(err))
				return nil
			}
			place := NearbyPlace{
				Name:         item.Name,
				PlaceID:      item.LocationID,
				Vicinity:     item.AddressObj.AddressString,
				Distance:     float64(item.Distance),
				Bearing:      item.Bearing,
				Type:         args.Type,
				Rating:       float64(details.Rating),
				PriceLevel:   details.PriceLevel,
				Description:  details.Description,
				Phone:        details.Phone,
				Website:      details.Website,
				ReviewsCount: int(details.NumReviews),
				Hours:        []string{},
				Periods:      []Period{},
				Photos:       placePhotos(gctx, deps, item.LocationID),
				Source:       "TripAdvisor",
			}
			if place.Name == "" {
				place.Name = "Unnamed Place"
			}
			place.Location = LatLng{
				Lat: firstNonZero(float64(details.Latitude), float64(item.Latitude), center.Lat),
				Lng: firstNonZero(float64(details.Longitude), float64(item.Longitude), center.Lng),
			}
			if len(details.Cuisine) > 0 {
				place.Cuisine = details.Cuisine[0].Name
			}
			if details.Source != nil && details.Source.Name != "" {
				place.Source = details.Source.Name
			}
			if details.Hours != nil {
				if details.Hours.WeekdayText != nil {
					place.Hours = details.Hours.WeekdayText
				}
				if details.Hours.Periods != nil {
					place.Periods = details.Hours.Periods
				}
			}

			place.Timezone = placeTimezone(gctx, deps, rc, place.Location)
			loc, err := time.LoadLocation(place.Timezone)
			if err != nil {
				loc = time.UTC
			}
			status := Status(place.Periods, requestNow(rc).In(loc))
			place.IsClosed = status.IsClosed
			place.NextOpenClose = status.NextOpenClose
			place.NextDay = status.NextDay

			mu.Lock()
			places = append(places, place)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return NearbyResult{}, err
	}
	sort.SliceStable(places, func(i, j int) bool { return places[i].Distance < places[j].Distance })
	return NearbyResult{Results: places, Center: center}, nil
}

func placeDetails(ctx context.Context, deps Deps, id string) (tripAdvisorDetails, error) {
	query := url.Values{}
	query.Set("language", "en")
	query.Set("currency", "USD")
	query.Set("key", deps.Keys.TripAdvisor)
	var details tripAdvisorDetails
	endpoint := deps.Endpoints.TripAdvisor + "/api/v1/location/" + url.PathEscape(id) + "/details?" + query.Encode()
	err := deps.HTTP.GetJSON(ctx, "tripadvisor", endpoint, tripAdvisorHeaders, &details)
	return details, err
}

// placePhotos never fails; a broken photo feed yields no photos.
func placePhotos(ctx context.Context, deps Deps, id string) []Photo {
	query := url.Values{}
	query.Set("language", "en")
	query.Set("key", deps.Keys.TripAdvisor)
	var resp tripAdvisorPhotos
	endpoint := deps.Endpoints.TripAdvisor + "/api/v1/location/" + url.PathEscape(id) + "/photos?" + query.Encode()
	photos := []Photo{}
	if err := deps.HTTP.GetJSON(ctx, "tripadvisor", endpoint, tripAdvisorHeaders, &resp); err != nil {
		deps.Logger.Debug("photo fetch failed", zap.String("location_id", id), zap.Error(err))
		return photos
	}
	for _, p := range resp.Data {
		photo := Photo{
			Thumbnail: p.Images["thumbnail"].URL,
			Small:     p.Images["small"].URL,
			Medium:    p.Images["medium"].URL,
			Large:     p.Images["large"].URL,
			Original:  p.Images["original"].URL,
			Caption:   p.Caption,
		}
		if photo.Medium != "" {
			photos = append(photos, photo)
		}
	}
	return photos
}

type googleTimezone struct {
	Status     string `json:"status"`
	TimeZoneID string `json:"timeZoneId"`
}

// placeTimezone asks the Google Time Zone API, then the offline finder,
// then settles on UTC.
func placeTimezone(ctx context.Context, deps Deps, rc RequestContext, at LatLng) string {
	query := url.Values{}
	query.Set("location", formatCoord(at.Lat)+","+formatCoord(at.Lng))
	query.Set("timestamp", strconv.FormatInt(requestNow(rc).Unix(), 10))
	query.Set("key", deps.Keys.GoogleMaps)
	var tz googleTimezone
	endpoint := deps.Endpoints.GoogleMaps + "/maps/api/timezone/json?" + query.Encode()
	if err := deps.HTTP.GetJSON(ctx, "google_maps", endpoint, nil, &tz); err == nil && tz.TimeZoneID != "" {
		return tz.TimeZoneID
	}
	if deps.Zones != nil {
		if name := deps.Zones.GetTimezoneName(at.Lng, at.Lat); name != "" {
			return name
		}
	}
	return "UTC"
}

func requestNow(rc RequestContext) time.Time {
	if rc.Now.IsZero() {
		return time.Now()
	}
	return rc.Now
}

// truncateCoord keeps at most six decimals without rounding.
func truncateCoord(v float64) float64 {
	text := strconv.FormatFloat(v, 'f', -1, 64)
	whole, frac, found := strings.Cut(text, ".")
	if !found {
		return v
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	out, err := strconv.ParseFloat(whole+"."+frac, 64)
	if err != nil {
		return v
	}
	return out
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
