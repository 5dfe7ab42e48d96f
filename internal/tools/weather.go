package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

type weatherArgs struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func weatherTool(deps Deps) Definition {
	return Definition{
		Name:        "get_weather_data",
		Description: "Get the weather data for the given coordinates.",
		Schema: Schema{Fields: []Field{
			{Name: "lat", Type: TypeNumber, Required: true, Description: "The latitude of the location.", Minimum: Float(-90), Maximum: Float(90)},
			{Name: "lon", Type: TypeNumber, Required: true, Description: "The longitude of the location.", Minimum: Float(-180), Maximum: Float(180)},
		}},
		Execute: func(ctx context.Context, rc RequestContext, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[weatherArgs](raw)
			if err != nil {
				return nil, err
			}
			query := url.Values{}
			query.Set("lat", formatCoord(args.Lat))
			query.Set("lon", formatCoord(args.Lon))
			query.Set("appid", deps.Keys.OpenWeather)
			var forecast json.RawMessage
			endpoint := deps.Endpoints.OpenWeather + "/data/2.5/forecast?" + query.Encode()
			if err := deps.HTTP.GetJSON(ctx, "openweather", endpoint, nil, &forecast); err != nil {
				return nil, err
			}
			return forecast, nil
		},
	}
}

type flightArgs struct {
	FlightNumber string `json:"flight_number"`
}

func trackFlightTool(deps Deps) Definition {
	return Definition{
		Name:        "track_flight",
		Description: "Track flight information and status",
		Schema: Schema{Fields: []Field{
			{Name: "flight_number", Type: TypeString, Required: true, Description: "The flight number to track"},
		}},
		Execute: func(ctx context.Context, rc RequestContext, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[flightArgs](raw)
			if err != nil {
				return nil, err
			}
			query := url.Values{}
			query.Set("access_key", deps.Keys.AviationStack)
			query.Set("flight_iata", args.FlightNumber)
			var status json.RawMessage
			endpoint := deps.Endpoints.AviationStack + "/v1/flights?" + query.Encode()
			if err := deps.HTTP.GetJSON(ctx, "aviationstack", endpoint, nil, &status); err != nil {
				return nil, err
			}
			return status, nil
		},
	}
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%g", v)
}
