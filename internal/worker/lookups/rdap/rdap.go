// Package rdap implements the RDAP lookup: an HTTP client against the IANA
// RDAP bootstrap registry to find the authoritative server for a target,
// then a follow-up request to that server for the actual record.
package rdap

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/netreach/lookupd/internal/domain"
)

const (
	ipBootstrapURL     = "https://data.iana.org/rdap/ipv4.json"
	ipv6BootstrapURL   = "https://data.iana.org/rdap/ipv6.json"
	domainBootstrapURL = "https://data.iana.org/rdap/dns.json"
)

// Record is the payload an RDAP lookup produces.
type Record struct {
	Target    string   `json:"target"`
	QueryType string   `json:"query_type"`
	Handle    string   `json:"handle,omitempty"`
	Name      string   `json:"name,omitempty"`
	Status    []string `json:"status,omitempty"`
}

// Lookup queries RDAP servers for cmd.Target via an http.Client.
type Lookup struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewLookup constructs a Lookup with the given per-request timeout.
func NewLookup(timeout time.Duration) *Lookup {
	return &Lookup{Client: &http.Client{Timeout: timeout}, Timeout: timeout}
}

// Validate rejects commands missing a target; RDAP serves both IP and DNS
// targets.
func Validate(cmd domain.Command) error {
	if cmd.Target == "" {
		return fmt.Errorf("%w: target required", domain.ErrInvalidArgument)
	}
	return nil
}

// PerformLookup resolves cmd.Target's authoritative RDAP server via the
// IANA bootstrap registries, then fetches its record.
func (l *Lookup) PerformLookup(ctx context.Context, cmd domain.Command) (any, error) {
	tracer := otel.Tracer("worker.rdap")
	ctx, span := tracer.Start(ctx, "rdap.PerformLookup")
	defer span.End()
	span.SetAttributes(attribute.String("rdap.target", cmd.Target), attribute.String("rdap.target_kind", string(cmd.TargetKind)))

	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	queryType := "domain"
	if cmd.TargetKind == domain.TargetIP {
		queryType = "ip"
	}

	server, err := l.bootstrapServer(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("op=rdap.bootstrap: %w", err)
	}

	path := "domain/" + cmd.Target
	if queryType == "ip" {
		path = "ip/" + cmd.Target
	}
	queryURL := strings.TrimRight(server, "/") + "/" + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("op=rdap.request: %w", err)
	}
	req.Header.Set("Accept", "application/rdap+json")

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("op=rdap.do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Handle string   `json:"handle"`
		Name   string   `json:"ldhName"`
		Status []string `json:"status"`
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&body); err != nil && resp.StatusCode < 400 {
		return nil, fmt.Errorf("op=rdap.decode: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Record{Target: cmd.Target, QueryType: queryType}, nil
	}

	return Record{
		Target:    cmd.Target,
		QueryType: queryType,
		Handle:    body.Handle,
		Name:      body.Name,
		Status:    body.Status,
	}, nil
}

func (l *Lookup) bootstrapServer(ctx context.Context, cmd domain.Command) (string, error) {
	bootstrapURL := domainBootstrapURL
	if cmd.TargetKind == domain.TargetIP {
		bootstrapURL = ipBootstrapURL
		if strings.Contains(cmd.Target, ":") {
			bootstrapURL = ipv6BootstrapURL
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bootstrapURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var bootstrap struct {
		Services [][][]string `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bootstrap); err != nil {
		return "", err
	}

	for _, service := range bootstrap.Services {
		if len(service) < 2 {
			continue
		}
		entries, urls := service[0], service[1]
		for _, entry := range entries {
			if matchesEntry(cmd, entry) && len(urls) > 0 {
				return urls[0], nil
			}
		}
	}
	return "", fmt.Errorf("no RDAP service found for %q", cmd.Target)
}

func matchesEntry(cmd domain.Command, entry string) bool {
	if cmd.TargetKind == domain.TargetIP {
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return false
		}
		ip := net.ParseIP(cmd.Target)
		return ip != nil && network.Contains(ip)
	}
	return strings.HasSuffix(cmd.Target, "."+entry) || cmd.Target == entry
}
