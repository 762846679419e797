//go:build e2e

package e2e_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_ReverseDNSOnDomain covers S2: a ReverseDNS request against a DNS
// target fails validation at the worker, but the job still reaches
// Completed overall since the per-service failure is recorded, not fatal.
func TestE2E_ReverseDNSOnDomain(t *testing.T) {
	t.Parallel()
	client := &http.Client{Timeout: 5 * time.Second}
	requireReachable(t, client)

	resp, submitted := submitJob(t, client, map[string]any{
		"target":   "example.com",
		"services": []string{"ReverseDNS"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "submit response: %#v", submitted)
	jobID, _ := submitted["id"].(string)
	require.NotEmpty(t, jobID)

	view := waitForStatus(t, client, jobID, 90*time.Second, "completed")
	status, _ := view["status"].(string)
	require.Equal(t, "completed", status, "job did not complete in time: %#v", view)

	services, _ := view["services"].([]any)
	require.Len(t, services, 1)
	entry, _ := services[0].(map[string]any)
	assert.Equal(t, "ReverseDNS", entry["kind"])
	assert.Equal(t, "failed", entry["status"])
	msg, _ := entry["error_message"].(string)
	assert.Contains(t, msg, "IP address", "error message should explain the IP requirement: %#v", entry)
}
