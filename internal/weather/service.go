// Package weather is the location lookup proxy served next to the downloads.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLocationNotFound is returned when a query does not geocode.
var ErrLocationNotFound = errors.New("location not found")

// DefaultPlace is used when the query is empty.
var DefaultPlace = Place{Name: "Demoville", Latitude: 40.0, Longitude: -95.0, Country: "US"}

// Report is the /api/weather response body.
type Report struct {
	Location  string          `json:"location"`
	Queried   string          `json:"queried"`
	Timestamp time.Time       `json:"timestamp"`
	Current   json.RawMessage `json:"current"`
	Daily     json.RawMessage `json:"daily"`
	Raw       json.RawMessage `json:"raw"`
}

// Upstream is the forecast source. Implemented by *Client.
type Upstream interface {
	Geocode(ctx context.Context, name string) (Place, bool, error)
	Forecast(ctx context.Context, lat, lon float64) (Forecast, error)
}

// Service answers weather queries through per-process caches.
type Service struct {
	upstream  Upstream
	places    *Cache[Place]
	forecasts *Cache[Forecast]
	now       func() time.Time
}

// NewService wires upstream with the given caches.
func NewService(upstream Upstream, places *Cache[Place], forecasts *Cache[Forecast]) *Service {
	return &Service{upstream: upstream, places: places, forecasts: forecasts, now: time.Now}
}

// Lookup geocodes q (or uses DefaultPlace when q is blank) and returns the
// forecast for it.
func (s *Service) Lookup(ctx context.Context, q string) (Report, error) {
	q = strings.TrimSpace(q)

	place := DefaultPlace
	if q != "" {
		p, err := s.geocode(ctx, q)
		if err != nil {
			return Report{}, err
		}
		place = p
	}

	fc, err := s.forecast(ctx, place.Latitude, place.Longitude)
	if err != nil {
		return Report{}, err
	}

	location := place.Name
	if place.Country != "" {
		location += ", " + place.Country
	}
	return Report{
		Location:  location,
		Queried:   q,
		Timestamp: s.now().UTC(),
		Current:   nullIfEmpty(fc.Current),
		Daily:     nullIfEmpty(fc.Daily),
		Raw:       nullIfEmpty(fc.Raw),
	}, nil
}

func (s *Service) geocode(ctx context.Context, name string) (Place, error) {
	key := "geo:" + strings.ToLower(name)
	if p, ok := s.places.Get(key); ok {
		return p, nil
	}
	p, ok, err := s.upstream.Geocode(ctx, name)
	if err != nil {
		return Place{}, fmt.Errorf("geocode %q: %w", name, err)
	}
	if !ok {
		return Place{}, ErrLocationNotFound
	}
	s.places.Set(key, p)
	return p, nil
}

func (s *Service) forecast(ctx context.Context, lat, lon float64) (Forecast, error) {
	key := fmt.Sprintf("wx:%.2f,%.2f", lat, lon)
	if fc, ok := s.forecasts.Get(key); ok {
		return fc, nil
	}
	fc, err := s.upstream.Forecast(ctx, lat, lon)
	if err != nil {
		return Forecast{}, err
	}
	s.forecasts.Set(key, fc)
	return fc, nil
}

func nullIfEmpty(m json.RawMessage) json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage("null")
	}
	return m
}
