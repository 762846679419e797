package geoip_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/worker/lookups/geoip"
)

func TestPerformLookup_KnownRangeFound(t *testing.T) {
	t.Parallel()
	out, err := geoip.PerformLookup(context.Background(), domain.Command{
		Target: "8.8.8.8", TargetKind: domain.TargetIP, Kind: domain.ServiceGeoIP,
	})
	require.NoError(t, err)
	loc := out.(geoip.Location)
	assert.True(t, loc.Found)
	assert.Equal(t, "US", loc.CountryCode)
}

func TestPerformLookup_UnknownRangeNotFound(t *testing.T) {
	t.Parallel()
	out, err := geoip.PerformLookup(context.Background(), domain.Command{
		Target: "203.0.113.1", TargetKind: domain.TargetIP, Kind: domain.ServiceGeoIP,
	})
	require.NoError(t, err)
	loc := out.(geoip.Location)
	assert.False(t, loc.Found)
}

func TestValidate_EmptyTargetRejected(t *testing.T) {
	t.Parallel()
	err := geoip.Validate(domain.Command{})
	require.Error(t, err)
}
