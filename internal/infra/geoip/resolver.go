package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when the resolver is not initialized.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// Location is the subset of GeoIP data captured on signup.
type Location struct {
	CountryCode string
	Latitude    float64
	Longitude   float64
}

// LocationResolver resolves approximate locations from IP addresses.
type LocationResolver interface {
	Lookup(ip string) (*Location, error)
}

// Resolver provides lookups backed by a MaxMind GeoIP2 city database.
type Resolver struct {
	reader *geoip2.Reader
}

// NewResolver opens the GeoIP database at the given path. When the path is empty, nil is returned.
func NewResolver(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// Lookup returns the country code and coordinates for the provided IP.
func (r *Resolver) Lookup(ip string) (*Location, error) {
	if r == nil || r.reader == nil {
		return nil, ErrUnavailable
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("geoip: invalid ip %q", ip)
	}
	record, err := r.reader.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("geoip: lookup city: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return &Location{
		CountryCode: record.Country.IsoCode,
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
	}, nil
}

// Close closes the underlying database reader.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
