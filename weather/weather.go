// Package weather resolves a place name to coordinates and fetches
// current conditions plus a daily forecast for it. Geocoding and weather
// are separate upstream APIs composed behind one call.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

const (
	defaultTimeout = 30 * time.Second

	// LimiterQueue is the rate-limiter queue both upstream calls pass
	// through.
	LimiterQueue = "weather"
)

// Place is a geocoding record.
type Place struct {
	Name       string            `json:"name"`
	LocalNames map[string]string `json:"local_names,omitempty"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Country    string            `json:"country,omitempty"`
	State      string            `json:"state,omitempty"`
}

// Conditions is a current-weather snapshot.
type Conditions struct {
	Description string  `json:"description"`
	Temp        float64 `json:"temp"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

// DayForecast is one day of the forecast, in upstream order.
type DayForecast struct {
	Date        string  `json:"date"`
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	Description string  `json:"description"`
}

// Report combines the resolved place with its weather.
type Report struct {
	Place   Place         `json:"place"`
	Current Conditions    `json:"current"`
	Daily   []DayForecast `json:"daily,omitempty"`
}

// coordKey keys the weather cache. Coordinates are rounded to 4 decimal
// places so nearby geocoder jitter maps to one entry.
type coordKey struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func coords(lat, lon float64) coordKey {
	return coordKey{Lat: fmt.Sprintf("%.4f", lat), Lon: fmt.Sprintf("%.4f", lon)}
}

// Client composes the geocoding and weather APIs.
type Client struct {
	geocodeEndpoint string
	weatherEndpoint string
	apiKey          string
	client          *http.Client
	places          gromozeka.Cache
	reports         gromozeka.Cache
	limiters        *gromozeka.Limiters
	logger          *slog.Logger
	tracer          gromozeka.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithTransport injects the HTTP transport, e.g. an httprec Recorder or
// Replayer.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.client.Transport = rt }
}

// WithCaches sets the geocoding cache (keyed by query text) and the
// weather cache (keyed by rounded coordinates).
func WithCaches(places, reports gromozeka.Cache) Option {
	return func(c *Client) {
		c.places = places
		c.reports = reports
	}
}

// WithLimiters routes upstream calls through the named rate-limiter
// registry.
func WithLimiters(l *gromozeka.Limiters) Option {
	return func(c *Client) { c.limiters = l }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer enables span creation around lookups.
func WithTracer(t gromozeka.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// NewClient creates a weather client over the two API endpoints.
func NewClient(geocodeEndpoint, weatherEndpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		geocodeEndpoint: geocodeEndpoint,
		weatherEndpoint: weatherEndpoint,
		apiKey:          apiKey,
		client:          &http.Client{Timeout: defaultTimeout},
		logger:          slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Report geocodes location and returns its weather. An unresolvable
// location is gromozeka.ErrNotFound.
func (c *Client) Report(ctx context.Context, location string) (Report, error) {
	if c.tracer != nil {
		var span gromozeka.Span
		ctx, span = c.tracer.Start(ctx, "weather.report",
			gromozeka.StringAttr("location", location))
		defer span.End()
	}

	place, err := c.geocode(ctx, location)
	if err != nil {
		return Report{}, err
	}

	key := coords(place.Lat, place.Lon)
	if c.reports != nil {
		if v, ok := c.reports.Get(ctx, key); ok {
			if r, ok := decodeCached[Report](v); ok {
				r.Place = place
				return r, nil
			}
		}
	}

	report, err := c.fetchWeather(ctx, place)
	if err != nil {
		return Report{}, err
	}
	if c.reports != nil {
		c.reports.Set(ctx, key, report)
	}
	return report, nil
}

func (c *Client) geocode(ctx context.Context, location string) (Place, error) {
	if c.places != nil {
		if v, ok := c.places.Get(ctx, location); ok {
			if p, ok := decodeCached[Place](v); ok {
				return p, nil
			}
		}
	}

	body, err := c.get(ctx, c.geocodeEndpoint, url.Values{"q": {location}})
	if err != nil {
		return Place{}, err
	}

	var places []Place
	if err := json.Unmarshal(body, &places); err != nil {
		return Place{}, fmt.Errorf("weather: decode geocode response: %w", err)
	}
	if len(places) == 0 {
		return Place{}, fmt.Errorf("weather: %q: %w", location, gromozeka.ErrNotFound)
	}

	place := places[0]
	if c.places != nil {
		c.places.Set(ctx, location, place)
	}
	return place, nil
}

func (c *Client) fetchWeather(ctx context.Context, place Place) (Report, error) {
	key := coords(place.Lat, place.Lon)
	body, err := c.get(ctx, c.weatherEndpoint, url.Values{
		"lat": {key.Lat},
		"lon": {key.Lon},
	})
	if err != nil {
		return Report{}, err
	}

	var payload struct {
		Current Conditions    `json:"current"`
		Daily   []DayForecast `json:"daily"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Report{}, fmt.Errorf("weather: decode response: %w", err)
	}
	return Report{Place: place, Current: payload.Current, Daily: payload.Daily}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.limiters != nil {
		if err := c.limiters.Apply(ctx, LimiterQueue); err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("weather endpoint: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	if c.apiKey != "" {
		q.Set("appid", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &gromozeka.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// decodeCached tolerates both the in-memory case (the value stored
// as-is) and persistent backends that round-trip through JSON maps.
func decodeCached[T any](v any) (T, bool) {
	var zero T
	switch t := v.(type) {
	case T:
		return t, true
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return zero, false
		}
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return zero, false
		}
		return out, true
	}
	return zero, false
}
