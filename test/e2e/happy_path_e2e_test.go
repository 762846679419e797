//go:build e2e

package e2e_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_HappyPath covers S1: a two-service lookup against a public IP
// completing with both services successful.
func TestE2E_HappyPath(t *testing.T) {
	t.Parallel()
	client := &http.Client{Timeout: 5 * time.Second}
	requireReachable(t, client)

	resp, submitted := submitJob(t, client, map[string]any{
		"target":   "8.8.8.8",
		"services": []string{"GeoIP", "Ping"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "submit response: %#v", submitted)
	jobID, _ := submitted["id"].(string)
	require.NotEmpty(t, jobID, "expected a job id in submit response: %#v", submitted)

	view := waitForStatus(t, client, jobID, 90*time.Second, "completed")
	status, _ := view["status"].(string)
	require.Equal(t, "completed", status, "job did not complete in time: %#v", view)

	services, ok := view["services"].([]any)
	require.True(t, ok, "expected services array: %#v", view)
	seen := map[string]bool{}
	for _, raw := range services {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := entry["kind"].(string)
		status, _ := entry["status"].(string)
		seen[kind] = true
		assert.Equal(t, "succeeded", status, "service %s did not succeed: %#v", kind, entry)
	}
	assert.True(t, seen["GeoIP"], "missing GeoIP result: %#v", view)
	assert.True(t, seen["Ping"], "missing Ping result: %#v", view)
}
