// Package weather is a small OpenWeatherMap client covering direct geocoding and current conditions.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

//nolint:gochecknoglobals // drop-in encoding/json replacement
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultGeoBaseURL hosts the /geo/1.0 endpoints.
	DefaultGeoBaseURL = "http://api.openweathermap.org"
	// DefaultDataBaseURL hosts the /data/2.5 endpoints.
	DefaultDataBaseURL = "https://api.openweathermap.org"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 256 * 1024
)

// ErrNoAPIKey is returned when the client has no API key configured.
var ErrNoAPIKey = errors.New("OpenWeatherMap API key not configured")

// StatusError reports a non-2xx response from the provider.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// Place is one direct-geocoding hit.
type Place struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Conditions is the subset of the current-weather response the tools expose.
type Conditions struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Description returns the first weather description, or "".
func (c *Conditions) Description() string {
	if len(c.Weather) == 0 {
		return ""
	}
	return c.Weather[0].Description
}

// Config configures a Client.
type Config struct {
	APIKey      string
	GeoBaseURL  string
	DataBaseURL string
	Timeout     time.Duration
}

// Client calls the OpenWeatherMap HTTP API.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	geoBaseURL  string
	dataBaseURL string
}

// NewClient builds a client, filling in default endpoints and timeout.
func NewClient(cfg Config) *Client {
	if cfg.GeoBaseURL == "" {
		cfg.GeoBaseURL = DefaultGeoBaseURL
	}
	if cfg.DataBaseURL == "" {
		cfg.DataBaseURL = DefaultDataBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		apiKey:      cfg.APIKey,
		geoBaseURL:  cfg.GeoBaseURL,
		dataBaseURL: cfg.DataBaseURL,
	}
}

// Geocode resolves a place name to at most one coordinate hit.
// An empty slice means the provider knows no such place.
func (c *Client) Geocode(ctx context.Context, query string) ([]Place, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", "1")
	q.Set("appid", c.apiKey)

	var places []Place
	if err := c.getJSON(ctx, c.geoBaseURL+"/geo/1.0/direct?"+q.Encode(), &places); err != nil {
		return nil, err
	}
	return places, nil
}

// Current returns metric current conditions at a coordinate.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Conditions, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	var cond Conditions
	if err := c.getJSON(ctx, c.dataBaseURL+"/data/2.5/weather?"+q.Encode(), &cond); err != nil {
		return nil, err
	}
	return &cond, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: req.URL.Path}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("malformed response from %s: %w", req.URL.Path, err)
	}
	return nil
}
