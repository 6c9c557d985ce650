package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Place is a geocoded location.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country,omitempty"`
}

// Forecast is the upstream forecast document. Current and Daily are the
// sections the page renders; Raw is the whole body.
type Forecast struct {
	Current json.RawMessage
	Daily   json.RawMessage
	Raw     json.RawMessage
}

// Client talks to the Open-Meteo geocoding and forecast APIs.
type Client struct {
	http        *http.Client
	geocodeURL  string
	forecastURL string
}

// NewClient creates a Client. timeout bounds each upstream call.
func NewClient(geocodeURL, forecastURL string, timeout time.Duration) *Client {
	return &Client{
		http:        &http.Client{Timeout: timeout},
		geocodeURL:  geocodeURL,
		forecastURL: forecastURL,
	}
}

// Geocode resolves name to the best matching place. A missing match or a
// non-2xx response reports ok=false.
func (c *Client) Geocode(ctx context.Context, name string) (Place, bool, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	var body struct {
		Results []struct {
			Name        string  `json:"name"`
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			Country     string  `json:"country"`
			CountryCode string  `json:"country_code"`
		} `json:"results"`
	}
	status, err := c.getJSON(ctx, c.geocodeURL, q, &body)
	if err != nil {
		return Place{}, false, err
	}
	if status < 200 || status > 299 || len(body.Results) == 0 {
		return Place{}, false, nil
	}

	r := body.Results[0]
	country := r.Country
	if country == "" {
		country = r.CountryCode
	}
	return Place{Name: r.Name, Latitude: r.Latitude, Longitude: r.Longitude, Country: country}, true, nil
}

// Forecast fetches current and daily weather in Fahrenheit.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (Forecast, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current_weather", "true")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,weathercode")
	q.Set("temperature_unit", "fahrenheit")
	q.Set("timezone", "auto")

	var raw json.RawMessage
	status, err := c.getJSON(ctx, c.forecastURL, q, &raw)
	if err != nil {
		return Forecast{}, err
	}
	if status < 200 || status > 299 {
		return Forecast{}, fmt.Errorf("weather API failed: %d", status)
	}

	var sections struct {
		Current json.RawMessage `json:"current_weather"`
		Daily   json.RawMessage `json:"daily"`
	}
	if err := json.Unmarshal(raw, &sections); err != nil {
		return Forecast{}, fmt.Errorf("decode forecast: %w", err)
	}
	return Forecast{Current: sections.Current, Daily: sections.Daily, Raw: raw}, nil
}

// getJSON decodes 2xx bodies into v and returns the status code.
func (c *Client) getJSON(ctx context.Context, base string, q url.Values, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", base, err)
	}
	return resp.StatusCode, nil
}
