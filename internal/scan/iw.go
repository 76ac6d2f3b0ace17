package scan

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// IWScanner shells out to `iw dev <ifname> scan` and parses the output into
// observations. Requires CAP_NET_ADMIN or a cached scan (`iw ... scan dump`).
type IWScanner struct {
	ifname string
	dump   bool
	logger *zap.Logger
}

// NewIWScanner creates a scanner for the given wireless interface.
// When dump is true the kernel's cached results are read instead of
// triggering a fresh scan.
func NewIWScanner(ifname string, dump bool, logger *zap.Logger) *IWScanner {
	return &IWScanner{ifname: ifname, dump: dump, logger: logger}
}

// Scan runs iw and parses its BSS blocks.
func (s *IWScanner) Scan(ctx context.Context) ([]AccessPoint, error) {
	args := []string{"dev", s.ifname, "scan"}
	if s.dump {
		args = append(args, "dump")
	}
	out, err := exec.CommandContext(ctx, "iw", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("iw scan on %s failed: %w", s.ifname, err)
	}
	observations := parseIWOutput(string(out))
	s.logger.Debug("scan completed",
		zap.String("interface", s.ifname),
		zap.Int("observations", len(observations)))
	return observations, nil
}

// parseIWOutput converts iw scan output into observations. Blocks start at
// "BSS <mac>" lines; entries without an SSID (hidden networks) are dropped.
func parseIWOutput(out string) []AccessPoint {
	var observations []AccessPoint
	var current *AccessPoint
	var caps []string

	flush := func() {
		if current != nil && current.SSID != "" {
			current.Capabilities = strings.Join(caps, " ")
			observations = append(observations, *current)
		}
		current = nil
		caps = nil
	}

	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "BSS "):
			flush()
			bssid := strings.TrimPrefix(line, "BSS ")
			if i := strings.IndexAny(bssid, "( "); i >= 0 {
				bssid = bssid[:i]
			}
			current = &AccessPoint{BSSID: bssid}
		case current == nil:
			continue
		case strings.HasPrefix(trimmed, "SSID: "):
			current.SSID = strings.TrimPrefix(trimmed, "SSID: ")
		case strings.HasPrefix(trimmed, "freq: "):
			freq := strings.TrimPrefix(trimmed, "freq: ")
			if i := strings.Index(freq, "."); i >= 0 {
				freq = freq[:i]
			}
			if v, err := strconv.Atoi(freq); err == nil {
				current.Frequency = v
			}
		case strings.HasPrefix(trimmed, "signal: "):
			sig := strings.TrimSuffix(strings.TrimPrefix(trimmed, "signal: "), " dBm")
			if v, err := strconv.ParseFloat(sig, 64); err == nil {
				current.SignalDBm = int(v)
			}
		case strings.HasPrefix(trimmed, "RSN:"):
			caps = append(caps, "RSN")
		case strings.HasPrefix(trimmed, "WPA:"):
			caps = append(caps, "WPA")
		case strings.HasPrefix(trimmed, "* Authentication suites: "):
			caps = append(caps, strings.TrimPrefix(trimmed, "* Authentication suites: "))
		}
	}
	flush()
	return observations
}
