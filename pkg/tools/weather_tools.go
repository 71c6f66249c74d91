package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"agentrunner/pkg/logx"
	"agentrunner/pkg/weather"
)

// Tool names advertised to the agent.
const (
	ToolGetGeoCoordinates = "getGeoCoordinates"
	ToolGetWeather        = "getWeather"
)

// WeatherProvider is the external API the weather tools call.
type WeatherProvider interface {
	Geocode(ctx context.Context, query string) ([]weather.Place, error)
	Current(ctx context.Context, lat, lon float64) (*weather.Conditions, error)
}

// ErrorPayload is the structured error a tool reports back to the agent.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Coordinates is the getGeoCoordinates payload. Nil fields serialize as JSON null.
type Coordinates struct {
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Error string   `json:"error,omitempty"`
}

// WeatherReport is the getWeather success payload.
type WeatherReport struct {
	Location struct {
		Name        string `json:"name"`
		Country     string `json:"country"`
		Coordinates struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coordinates"`
	} `json:"location"`
	Current struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
		Weather   string  `json:"weather"`
		Wind      struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	} `json:"current"`
}

// GeoCoordinatesTool resolves a city name to latitude/longitude.
type GeoCoordinatesTool struct {
	provider WeatherProvider
	logger   *logx.Logger
}

// NewGeoCoordinatesTool creates the geocoding tool.
func NewGeoCoordinatesTool(provider WeatherProvider) *GeoCoordinatesTool {
	return &GeoCoordinatesTool{provider: provider, logger: logx.NewLogger("tools")}
}

func (t *GeoCoordinatesTool) Definition() Definition {
	return Definition{
		Name:        ToolGetGeoCoordinates,
		Description: "Get geocoordinates (latitude and longitude) from city name.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"location": {
					Type:        "string",
					Description: "The name of the city to get geocoordinates for.",
				},
			},
			Required: []string{"location"},
		},
	}
}

// ErrNoLocation is reported when getGeoCoordinates is called without a location.
var ErrNoLocation = errors.New("No location parameter provided") //nolint:stylecheck // user-facing message

// ValidateArgs requires a non-empty location string.
func (t *GeoCoordinatesTool) ValidateArgs(args map[string]any) error {
	if location, _ := args["location"].(string); location == "" {
		return ErrNoLocation
	}
	return nil
}

// Exec never returns an error; provider failures come back as payload fields.
func (t *GeoCoordinatesTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	location, _ := args["location"].(string)

	places, err := t.provider.Geocode(ctx, location)
	if err != nil {
		if !errors.Is(err, weather.ErrNoAPIKey) {
			t.logger.Error("Error fetching geocoordinates for %s: %v", location, err)
		}
		return Coordinates{Error: err.Error()}, nil
	}
	if len(places) == 0 {
		return Coordinates{}, nil
	}

	lat, lon := places[0].Lat, places[0].Lon
	return Coordinates{Lat: &lat, Lon: &lon}, nil
}

// WeatherTool reports current conditions at a coordinate.
type WeatherTool struct {
	provider WeatherProvider
	logger   *logx.Logger
}

// NewWeatherTool creates the current-weather tool.
func NewWeatherTool(provider WeatherProvider) *WeatherTool {
	return &WeatherTool{provider: provider, logger: logx.NewLogger("tools")}
}

func (t *WeatherTool) Definition() Definition {
	return Definition{
		Name:        ToolGetWeather,
		Description: "Get current weather for a given city using its coordinates",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"lat": {Type: "number", Description: "Latitude of the city"},
				"lon": {Type: "number", Description: "Longitude of the city"},
			},
			Required: []string{"lat", "lon"},
		},
	}
}

func (t *WeatherTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	lat, err := NumberArg(args, "lat")
	if err != nil {
		return ErrorPayload{Error: err.Error()}, nil
	}
	lon, err := NumberArg(args, "lon")
	if err != nil {
		return ErrorPayload{Error: err.Error()}, nil
	}

	cond, err := t.provider.Current(ctx, lat, lon)
	if err != nil {
		if !errors.Is(err, weather.ErrNoAPIKey) {
			t.logger.Error("Error fetching weather data: %v", err)
		}
		return ErrorPayload{Error: err.Error()}, nil
	}

	var report WeatherReport
	report.Location.Name = cond.Name
	report.Location.Country = cond.Sys.Country
	report.Location.Coordinates.Lat = cond.Coord.Lat
	report.Location.Coordinates.Lon = cond.Coord.Lon
	report.Current.Temp = cond.Main.Temp
	report.Current.FeelsLike = cond.Main.FeelsLike
	report.Current.Humidity = cond.Main.Humidity
	report.Current.Weather = cond.Description()
	report.Current.Wind.Speed = cond.Wind.Speed
	return report, nil
}

// NumberArg reads a numeric argument that may arrive as a JSON number or a numeric string.
func NumberArg(args map[string]any, name string) (float64, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, fmt.Errorf("missing required parameter: %s", name)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case interface{ Float64() (float64, error) }:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s must be a number", name)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %s must be a number", name)
	}
}
