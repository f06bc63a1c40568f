package kernel

import (
	"errors"
	"fmt"
	"math"

	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/guard"
)

const (
	LatitudeMin  = -90.0
	LatitudeMax  = 90.0
	LongitudeMin = -180.0
	LongitudeMax = 180.0

	earthRadiusKm = 6371.0
)

var ErrLocationIsNotConstructed = errs.NewValueIsRequiredError(
	"location must be created via NewLocation constructor")

// Location is a WGS84 coordinate pair.
type Location struct {
	lat   float64
	lon   float64
	guard guard.ConstructorGuard
}

func NewLocation(lat, lon float64) (Location, error) {
	loc := Location{guard: guard.NewConstructorGuard()}

	if err := errors.Join(loc.setLatitude(lat), loc.setLongitude(lon)); err != nil {
		return Location{}, err
	}

	return loc, nil
}

func (l Location) Validate() error {
	return l.guard.Validate(ErrLocationIsNotConstructed)
}

func (l Location) Latitude() float64 {
	return l.lat
}

func (l Location) Longitude() float64 {
	return l.lon
}

// IsZero reports whether the location was never set.
func (l Location) IsZero() bool {
	return l.Validate() != nil
}

func (l Location) String() string {
	return fmt.Sprintf("Location(%.6f,%.6f)", l.lat, l.lon)
}

func (l Location) IsEqual(other Location) (bool, error) {
	if err := errors.Join(l.Validate(), other.Validate()); err != nil {
		return false, err
	}

	return l.lat == other.lat && l.lon == other.lon, nil
}

// DistanceKm returns the haversine great-circle distance in kilometres.
func (l Location) DistanceKm(other Location) (float64, error) {
	if err := errors.Join(l.Validate(), other.Validate()); err != nil {
		return 0, err
	}

	lat1, lat2 := radians(l.lat), radians(other.lat)
	dLat := lat2 - lat1
	dLon := radians(other.lon - l.lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a))), nil
}

func (l *Location) setLatitude(lat float64) error {
	if math.IsNaN(lat) || lat < LatitudeMin || lat > LatitudeMax {
		return errs.NewValueIsOutOfRangeError("latitude", lat, LatitudeMin, LatitudeMax)
	}
	l.lat = lat
	return nil
}

func (l *Location) setLongitude(lon float64) error {
	if math.IsNaN(lon) || lon < LongitudeMin || lon > LongitudeMax {
		return errs.NewValueIsOutOfRangeError("longitude", lon, LongitudeMin, LongitudeMax)
	}
	l.lon = lon
	return nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
