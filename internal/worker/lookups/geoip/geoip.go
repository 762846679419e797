// Package geoip implements the GeoIP lookup as a small built-in flat table
// keyed by IP range, in the spirit of a MaxMind GeoLite2 CSV but without
// shipping an actual external database. This is intentionally the one
// lookup that is a stub rather than a real network client — a real GeoIP
// answer needs either a licensed database file or a paid API, neither of
// which belongs vendored into this repository.
package geoip

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/netreach/lookupd/internal/domain"
)

// Location is the payload a GeoIP lookup produces.
type Location struct {
	Target      string  `json:"target"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Found       bool    `json:"found"`
}

type rangeEntry struct {
	network     netip.Prefix
	countryCode string
	country     string
	city        string
	lat, lon    float64
}

// table is a small, illustrative set of well-known ranges; it is not a
// substitute for a real GeoIP database and exists only so the lookup has
// something deterministic to answer with.
var table = []rangeEntry{
	{mustPrefix("8.8.8.0/24"), "US", "United States", "Mountain View", 37.386, -122.0838},
	{mustPrefix("1.1.1.0/24"), "AU", "Australia", "Sydney", -33.8688, 151.2093},
	{mustPrefix("9.9.9.0/24"), "US", "United States", "Berkeley", 37.8715, -122.2730},
	{mustPrefix("185.199.108.0/22"), "US", "United States", "San Francisco", 37.7749, -122.4194},
	{mustPrefix("140.82.112.0/20"), "US", "United States", "San Francisco", 37.7749, -122.4194},
}

func mustPrefix(s string) netip.Prefix {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate rejects commands missing a target. Both IP and DNS targets are
// accepted; PerformLookup resolves a DNS name to an IP itself.
func Validate(cmd domain.Command) error {
	if cmd.Target == "" {
		return fmt.Errorf("%w: target required", domain.ErrInvalidArgument)
	}
	return nil
}

// PerformLookup resolves cmd.Target to an IP (if it is a DNS name) and
// answers with whichever table entry contains it, or Found=false.
func PerformLookup(ctx context.Context, cmd domain.Command) (any, error) {
	addr, err := resolveToIP(ctx, cmd)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	for _, entry := range table {
		if entry.network.Contains(addr) {
			return Location{
				Target:      cmd.Target,
				CountryCode: entry.countryCode,
				Country:     entry.country,
				City:        entry.city,
				Latitude:    entry.lat,
				Longitude:   entry.lon,
				Found:       true,
			}, nil
		}
	}
	return Location{Target: cmd.Target, Found: false}, nil
}

func resolveToIP(ctx context.Context, cmd domain.Command) (netip.Addr, error) {
	if cmd.TargetKind == domain.TargetIP {
		addr, err := netip.ParseAddr(cmd.Target)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("op=geoip.resolve: %w", err)
		}
		return addr, nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ips, err := net.DefaultResolver.LookupIP(resolveCtx, "ip", cmd.Target)
	if err != nil || len(ips) == 0 {
		return netip.Addr{}, fmt.Errorf("op=geoip.resolve: could not resolve %q: %w", cmd.Target, err)
	}
	addr, ok := netip.AddrFromSlice(ips[0])
	if !ok {
		return netip.Addr{}, fmt.Errorf("op=geoip.resolve: unparseable resolved address for %q", cmd.Target)
	}
	return addr, nil
}
