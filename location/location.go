// Package location acquires device coordinates and turns them into a
// human-readable address via reverse geocoding, degrading to a formatted
// coordinate string when the geocoding provider cannot help.
package location

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Coordinates is a GPS point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AddressInfo is the resolved human-readable form of a point. Both fields are
// always populated once coordinates exist.
type AddressInfo struct {
	Address  string `json:"address"`
	RoadName string `json:"road_name"`
}

// Geolocation failure kinds. Each maps to a distinct remedial message in the
// UI; none of them is fatal to the form.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("location request timed out")
	ErrNotSupported        = errors.New("geolocation is not supported on this device")
)

// Geolocator is the injected platform capability. CurrentPosition performs a
// single position fix per call, not a watch.
type Geolocator interface {
	CurrentPosition(ctx context.Context) (Coordinates, error)
}

// Unsupported is the Geolocator for platforms without a positioning
// capability, e.g. a headless CLI host.
type Unsupported struct{}

func (Unsupported) CurrentPosition(context.Context) (Coordinates, error) {
	return Coordinates{}, ErrNotSupported
}

// Static always reports a fixed point, for configuration-pinned kiosks and
// tests.
type Static struct {
	Point Coordinates
}

func (s Static) CurrentPosition(context.Context) (Coordinates, error) {
	return s.Point, nil
}

// fallbackAddress formats raw coordinates for display when reverse geocoding
// is unavailable.
func fallbackAddress(c Coordinates) AddressInfo {
	return AddressInfo{
		Address:  fmt.Sprintf("Lat: %.6f, Lng: %.6f", c.Latitude, c.Longitude),
		RoadName: "Unnamed road",
	}
}
