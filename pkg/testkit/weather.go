package testkit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"agentrunner/pkg/weather"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WeatherProvider is a fake tools.WeatherProvider with call counters.
type WeatherProvider struct {
	Places     []weather.Place
	Conditions *weather.Conditions
	Err        error

	geocodeCalls atomic.Int64
	currentCalls atomic.Int64

	mu      sync.Mutex
	queries []string
}

func (p *WeatherProvider) Geocode(_ context.Context, query string) ([]weather.Place, error) {
	p.geocodeCalls.Add(1)
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Places, nil
}

func (p *WeatherProvider) Current(_ context.Context, _, _ float64) (*weather.Conditions, error) {
	p.currentCalls.Add(1)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Conditions, nil
}

// GeocodeCalls returns how many times Geocode ran.
func (p *WeatherProvider) GeocodeCalls() int { return int(p.geocodeCalls.Load()) }

// CurrentCalls returns how many times Current ran.
func (p *WeatherProvider) CurrentCalls() int { return int(p.currentCalls.Load()) }

// Queries returns the geocoding queries in call order.
func (p *WeatherProvider) Queries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.queries...)
}

// ParisPlace is the geocoding fixture for Paris.
func ParisPlace() weather.Place {
	return weather.Place{Name: "Paris", Country: "FR", Lat: 48.8566, Lon: 2.3522}
}

// ParisConditions is the current-weather fixture for Paris.
func ParisConditions() *weather.Conditions {
	var c weather.Conditions
	if err := json.Unmarshal([]byte(parisWeatherJSON), &c); err != nil {
		panic(err)
	}
	return &c
}

// ParisProvider returns a fake provider that knows Paris.
func ParisProvider() *WeatherProvider {
	return &WeatherProvider{Places: []weather.Place{ParisPlace()}, Conditions: ParisConditions()}
}

const parisGeoJSON = `[{"name":"Paris","lat":48.8566,"lon":2.3522,"country":"FR","state":"Ile-de-France"}]`

const parisWeatherJSON = `{
	"coord": {"lon": 2.3522, "lat": 48.8566},
	"weather": [{"id": 802, "main": "Clouds", "description": "scattered clouds"}],
	"main": {"temp": 18.5, "feels_like": 17.9, "humidity": 60},
	"wind": {"speed": 3.6},
	"sys": {"country": "FR"},
	"name": "Paris"
}`

// MockWeatherServer emulates the OpenWeatherMap geocoding and current-weather endpoints.
// Any query other than "Paris" geocodes to no results.
func MockWeatherServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/geo/1.0/direct", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") == "" {
			http.Error(w, `{"cod":401,"message":"Invalid API key"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") != "Paris" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(parisGeoJSON))
	})
	mux.HandleFunc("/data/2.5/weather", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") == "" {
			http.Error(w, `{"cod":401,"message":"Invalid API key"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(parisWeatherJSON))
	})
	return httptest.NewServer(mux)
}
