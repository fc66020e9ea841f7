// Package services: services/geocode_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gregjones/httpcache"
	"playjosh/models"
)

var (
	// ErrInvalidCoordinates is returned for missing or out of range lat/lng.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrGeocodeNotFound is returned when the upstream knows nothing about a point.
	ErrGeocodeNotFound = errors.New("no location data found for coordinates")
	// ErrGeocodeUpstream wraps upstream failures.
	ErrGeocodeUpstream = errors.New("geocoding service error")
)

// Geocoder resolves coordinates into a human readable location.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (models.Location, error)
}

// NominatimGeocoder calls an OpenStreetMap Nominatim compatible reverse endpoint.
type NominatimGeocoder struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

// NewNominatimGeocoder builds a geocoder whose upstream responses are cached in
// memory according to their HTTP caching headers.
func NewNominatimGeocoder(endpoint, userAgent string, transport http.RoundTripper) *NominatimGeocoder {
	cached := httpcache.NewTransport(httpcache.NewMemoryCache())
	if transport != nil {
		cached.Transport = transport
	}
	return &NominatimGeocoder{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    &http.Client{Transport: cached},
	}
}

// ParseCoordinates validates the lat/lng query values.
func ParseCoordinates(latRaw, lngRaw string) (float64, float64, error) {
	if latRaw == "" || lngRaw == "" {
		return 0, 0, fmt.Errorf("%w: missing coordinates", ErrInvalidCoordinates)
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("%w: lat %q", ErrInvalidCoordinates, latRaw)
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("%w: lng %q", ErrInvalidCoordinates, lngRaw)
	}
	return lat, lng, nil
}

type nominatimResponse struct {
	Error   any `json:"error"`
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// Reverse looks up the city, state and country around (lat, lng).
func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lng float64) (models.Location, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return models.Location{}, err
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := g.client.Do(req)
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: %v", ErrGeocodeUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: %v", ErrGeocodeUpstream, err)
	}
	var data nominatimResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return models.Location{}, fmt.Errorf("%w: invalid response", ErrGeocodeUpstream)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Location{}, fmt.Errorf("%w: status %d", ErrGeocodeUpstream, resp.StatusCode)
	}
	if data.Error != nil {
		return models.Location{}, ErrGeocodeNotFound
	}

	loc := models.Location{
		City:    firstNonEmpty(data.Address.City, data.Address.Town, data.Address.Village),
		State:   data.Address.State,
		Country: data.Address.Country,
	}
	if loc.Empty() {
		return models.Location{}, ErrGeocodeNotFound
	}
	return loc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
