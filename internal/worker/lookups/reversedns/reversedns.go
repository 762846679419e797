// Package reversedns implements the ReverseDNS lookup: a PTR lookup against
// cmd.Target via net.Resolver, the way a "dig -x" call would.
package reversedns

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/netreach/lookupd/internal/domain"
)

// Result is the payload a ReverseDNS lookup produces.
type Result struct {
	Target string   `json:"target"`
	Names  []string `json:"names"`
	Found  bool     `json:"found"`
}

// Validate rejects commands missing an IP target; reverse lookups only make
// sense against an address.
func Validate(cmd domain.Command) error {
	if cmd.Target == "" {
		return fmt.Errorf("%w: target required", domain.ErrInvalidArgument)
	}
	if cmd.TargetKind != domain.TargetIP {
		return fmt.Errorf("%w: Reverse DNS lookup requires an IP address target.", domain.ErrInvalidArgument)
	}
	if net.ParseIP(cmd.Target) == nil {
		return fmt.Errorf("%w: %q is not a valid ip address", domain.ErrInvalidArgument, cmd.Target)
	}
	return nil
}

// PerformLookup resolves cmd.Target's PTR records. The absence of any PTR
// record is a successful lookup with Found=false, not a failure.
func PerformLookup(ctx context.Context, cmd domain.Command) (any, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(lookupCtx, cmd.Target)
	if err != nil {
		if dnsErr, ok := err.(*net.DNSError); ok && dnsErr.IsNotFound {
			return Result{Target: cmd.Target, Found: false}, nil
		}
		return nil, fmt.Errorf("op=reversedns.lookup: %w", err)
	}
	if len(names) == 0 {
		return Result{Target: cmd.Target, Found: false}, nil
	}
	return Result{Target: cmd.Target, Names: names, Found: true}, nil
}
