package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const defaultGeocodeBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GeocodingResponse is the wire shape of the Google geocode endpoint, trimmed
// to the parts we read.
type GeocodingResponse struct {
	Results []struct {
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status string `json:"status"`
}

// Resolver acquires coordinates from a Geolocator and reverse-geocodes them.
type Resolver struct {
	geo     Geolocator
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewResolver(geo Geolocator, apiKey string) *Resolver {
	return &Resolver{
		geo:     geo,
		apiKey:  apiKey,
		baseURL: defaultGeocodeBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL overrides the geocoding endpoint, mainly for tests.
func (r *Resolver) WithBaseURL(url string) *Resolver {
	r.baseURL = url
	return r
}

// RequestDeviceLocation performs a single position fix and resolves its
// address. The returned error is one of the geolocation kinds; address
// resolution itself never fails.
func (r *Resolver) RequestDeviceLocation(ctx context.Context) (Coordinates, AddressInfo, error) {
	coords, err := r.geo.CurrentPosition(ctx)
	if err != nil {
		return Coordinates{}, AddressInfo{}, err
	}
	return coords, r.ResolveAddress(ctx, coords), nil
}

// SelectFromMap accepts a manually picked map point and resolves its address
// the same way a GPS fix would be.
func (r *Resolver) SelectFromMap(ctx context.Context, point Coordinates) (Coordinates, AddressInfo) {
	return point, r.ResolveAddress(ctx, point)
}

// ResolveAddress reverse-geocodes coords. On any provider failure (no key,
// network error, non-OK status, zero results) it falls back to the formatted
// coordinate string; it never returns an error.
func (r *Resolver) ResolveAddress(ctx context.Context, coords Coordinates) AddressInfo {
	if r.apiKey == "" {
		return fallbackAddress(coords)
	}

	url := fmt.Sprintf("%s?latlng=%f,%f&key=%s", r.baseURL, coords.Latitude, coords.Longitude, r.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fallbackAddress(coords)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("geocoding request failed: %v", err)
		return fallbackAddress(coords)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("geocoding unexpected status code: %v", resp.StatusCode)
		return fallbackAddress(coords)
	}

	var geocodingResponse GeocodingResponse
	if err := json.NewDecoder(resp.Body).Decode(&geocodingResponse); err != nil {
		log.Printf("error decoding geocoding response: %v", err)
		return fallbackAddress(coords)
	}
	if geocodingResponse.Status != "OK" || len(geocodingResponse.Results) == 0 {
		return fallbackAddress(coords)
	}

	return buildAddress(geocodingResponse, coords)
}

// buildAddress prefers the route component, appends the sublocality or
// neighborhood when distinct, then the locality or admin area when distinct
// from what came before. Without any route component the provider's formatted
// address wins.
func buildAddress(g GeocodingResponse, coords Coordinates) AddressInfo {
	var route, sublocality, locality, adminArea, formatted string
	for _, result := range g.Results {
		if formatted == "" {
			formatted = result.FormattedAddress
		}
		for _, component := range result.AddressComponents {
			switch {
			case contains(component.Types, "route") && route == "":
				route = component.LongName
			case (contains(component.Types, "sublocality") || contains(component.Types, "neighborhood")) && sublocality == "":
				sublocality = component.LongName
			case contains(component.Types, "locality") && locality == "":
				locality = component.LongName
			case contains(component.Types, "administrative_area_level_1") && adminArea == "":
				adminArea = component.LongName
			}
		}
	}

	if route == "" {
		if formatted == "" {
			return fallbackAddress(coords)
		}
		return AddressInfo{Address: formatted, RoadName: "Unnamed road"}
	}

	address := route
	if sublocality != "" && sublocality != route {
		address += ", " + sublocality
	}
	area := locality
	if area == "" {
		area = adminArea
	}
	if area != "" && area != sublocality && area != route {
		address += ", " + area
	}
	return AddressInfo{Address: address, RoadName: route}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
