//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"
)

const defaultBaseURL = "http://localhost:8080"

var baseURL = getenv("LOOKUPD_BASE_URL", defaultBaseURL)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// requireReachable skips the test if the submission API isn't answering its
// liveness probe, mirroring how the suite behaves against constrained or
// partially-provisioned environments.
func requireReachable(t *testing.T, client *http.Client) {
	t.Helper()
	resp, err := client.Get(baseURL + "/health/live")
	if err != nil {
		t.Skip("lookupd not reachable; skipping e2e test")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skip("lookupd not ready; skipping e2e test")
	}
}

func submitJob(t *testing.T, client *http.Client, body map[string]any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal submit body: %v", err)
	}
	resp, err := client.Post(baseURL+"/jobs", "application/json; charset=utf-8", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("submit job: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func getJob(t *testing.T, client *http.Client, id string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := client.Get(baseURL + "/jobs/" + id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// waitForStatus polls GET /jobs/{id} until status equals one of wanted or the
// deadline elapses, returning the last observed view either way.
func waitForStatus(t *testing.T, client *http.Client, id string, timeout time.Duration, wanted ...string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last map[string]any
	for time.Now().Before(deadline) {
		_, view := getJob(t, client, id)
		last = view
		status, _ := view["status"].(string)
		for _, w := range wanted {
			if status == w {
				return view
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return last
}
