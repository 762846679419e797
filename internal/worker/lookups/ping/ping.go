// Package ping implements the Ping lookup as an ICMP echo probe sequence
// using golang.org/x/net/icmp, aggregating loss and round-trip statistics
// the way a command-line ping tool would.
package ping

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/netreach/lookupd/internal/domain"
)

// Config controls probe count, spacing, and per-probe timeout.
type Config struct {
	ProbeCount   int
	ProbeSpacing time.Duration
	ProbeTimeout time.Duration
}

// DefaultConfig matches the spec's 4 probes / 500ms spacing / 5s timeout.
func DefaultConfig() Config {
	return Config{ProbeCount: 4, ProbeSpacing: 500 * time.Millisecond, ProbeTimeout: 5 * time.Second}
}

// Stats is the aggregated outcome of a probe sequence.
type Stats struct {
	Target      string        `json:"target"`
	Sent        int           `json:"sent"`
	Received    int           `json:"received"`
	LossPercent float64       `json:"loss_percent"`
	MinRTT      time.Duration `json:"min_rtt_ns"`
	MaxRTT      time.Duration `json:"max_rtt_ns"`
	AvgRTT      time.Duration `json:"avg_rtt_ns"`
}

// Validate rejects commands with no resolvable target; both IP and DNS
// targets are accepted since the probe resolves DNS names itself.
func Validate(cmd domain.Command) error {
	if cmd.Target == "" {
		return fmt.Errorf("%w: target required", domain.ErrInvalidArgument)
	}
	return nil
}

// Lookup probes cmd.Target with Config's probe sequence and returns Stats.
type Lookup struct {
	Config Config
}

// NewLookup constructs a Lookup with cfg.
func NewLookup(cfg Config) *Lookup { return &Lookup{Config: cfg} }

// PerformLookup runs the configured probe sequence against cmd.Target.
func (l *Lookup) PerformLookup(ctx context.Context, cmd domain.Command) (any, error) {
	addr, v6, err := resolve(cmd.Target)
	if err != nil {
		return nil, fmt.Errorf("op=ping.resolve: %w", err)
	}

	conn, err := listen(v6)
	if err != nil {
		return nil, fmt.Errorf("op=ping.listen: %w", err)
	}
	defer conn.Close()

	stats := Stats{Target: cmd.Target, Sent: l.Config.ProbeCount}
	var total time.Duration
	var minRTT, maxRTT time.Duration

	for seq := 0; seq < l.Config.ProbeCount; seq++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rtt, err := probeOnce(ctx, conn, addr, v6, seq, l.Config.ProbeTimeout)
		if err == nil {
			stats.Received++
			total += rtt
			if minRTT == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
		}
		if seq < l.Config.ProbeCount-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.Config.ProbeSpacing):
			}
		}
	}

	stats.LossPercent = 100 * float64(stats.Sent-stats.Received) / float64(stats.Sent)
	if stats.Received > 0 {
		stats.AvgRTT = total / time.Duration(stats.Received)
		stats.MinRTT = minRTT
		stats.MaxRTT = maxRTT
	}
	return stats, nil
}

func resolve(target string) (net.IP, bool, error) {
	ip := net.ParseIP(target)
	if ip == nil {
		ips, err := net.LookupIP(target)
		if err != nil || len(ips) == 0 {
			return nil, false, fmt.Errorf("could not resolve %q: %w", target, err)
		}
		ip = ips[0]
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4, false, nil
	}
	return ip, true, nil
}

func listen(v6 bool) (*icmp.PacketConn, error) {
	if v6 {
		return icmp.ListenPacket("udp6", "::")
	}
	return icmp.ListenPacket("udp4", "0.0.0.0")
}

func probeOnce(ctx context.Context, conn *icmp.PacketConn, addr net.IP, v6 bool, seq int, timeout time.Duration) (time.Duration, error) {
	proto := ipv4.ICMPTypeEcho
	var msgType icmp.Type = proto
	if v6 {
		msgType = ipv6.ICMPTypeEchoRequest
	}

	msg := icmp.Message{
		Type: msgType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   seq + 1,
			Seq:  seq,
			Data: []byte("lookupd-ping"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("marshal icmp message: %w", err)
	}

	dst := &net.UDPAddr{IP: addr}
	sent := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return 0, fmt.Errorf("write icmp packet: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}

	rb := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return 0, fmt.Errorf("read icmp reply: %w", err)
		}
		proto := 1
		if v6 {
			proto = 58
		}
		parsed, err := icmp.ParseMessage(proto, rb[:n])
		if err != nil {
			continue
		}
		echo, ok := parsed.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		return time.Since(sent), nil
	}
}
