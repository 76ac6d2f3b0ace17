package scan

import (
	"fmt"
	"net"
	"strings"
)

// MaxSSIDBytes is the 802.11 limit on SSID length.
const MaxSSIDBytes = 32

// AccessPoint is a single observed network from one scan cycle.
// Observations are cycle-scoped: the scanner produces a fresh list every
// cycle and the evaluator discards them when the cycle ends. The Untrusted
// flag is transient and set during candidate filtering.
type AccessPoint struct {
	SSID         string `json:"ssid"`
	BSSID        string `json:"bssid"`
	SignalDBm    int    `json:"signal_dbm"`
	Frequency    int    `json:"frequency"`
	Capabilities string `json:"capabilities"`
	Untrusted    bool   `json:"-"`
}

// ID returns the normalized identity key for this observation.
func (ap AccessPoint) ID() NetworkID {
	return NetworkID{SSID: ap.SSID, BSSID: ap.BSSID}
}

// NetworkID is the normalized (SSID, BSSID) key used to query the score
// cache and to match oracle answers back to observations. SSID is held
// unquoted.
type NetworkID struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
}

// Validate checks the identity fields against 802.11 constraints.
func (id NetworkID) Validate() error {
	if id.SSID == "" {
		return fmt.Errorf("empty SSID")
	}
	if len(id.SSID) > MaxSSIDBytes {
		return fmt.Errorf("SSID %q exceeds %d bytes", id.SSID, MaxSSIDBytes)
	}
	hw, err := net.ParseMAC(id.BSSID)
	if err != nil {
		return fmt.Errorf("invalid BSSID %q: %w", id.BSSID, err)
	}
	if len(hw) != 6 {
		return fmt.Errorf("BSSID %q is not a 48-bit address", id.BSSID)
	}
	return nil
}

// Key returns a stable map key for the identity.
func (id NetworkID) Key() string {
	return id.SSID + "|" + strings.ToLower(id.BSSID)
}

func (id NetworkID) String() string {
	return fmt.Sprintf("%s (%s)", id.SSID, id.BSSID)
}

// QuoteSSID wraps an SSID in double quotes the way persisted profiles store
// it. Already-quoted input is returned unchanged.
func QuoteSSID(ssid string) string {
	if isQuoted(ssid) {
		return ssid
	}
	return `"` + ssid + `"`
}

// UnquoteSSID strips the surrounding double quotes from a persisted SSID.
// Unquoted input is returned unchanged.
func UnquoteSSID(ssid string) string {
	if isQuoted(ssid) {
		return ssid[1 : len(ssid)-1]
	}
	return ssid
}

func isQuoted(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)
}

// Key management values as persisted on profiles.
const (
	KeyMgmtNone = "NONE"
	KeyMgmtPSK  = "WPA-PSK"
	KeyMgmtSAE  = "SAE"
	KeyMgmtEAP  = "WPA-EAP"
)

// KeyManagementFromCapabilities derives a key management policy from an
// observation's security capability string. Pure function of the observed
// fields; used when an oracle answer arrives without a policy set.
// PSK wins over SAE so WPA2/WPA3 transition networks stay connectable.
func KeyManagementFromCapabilities(caps string) string {
	switch {
	case strings.Contains(caps, "PSK"):
		return KeyMgmtPSK
	case strings.Contains(caps, "SAE"):
		return KeyMgmtSAE
	case strings.Contains(caps, "EAP") || strings.Contains(caps, "802.1X"):
		return KeyMgmtEAP
	default:
		return KeyMgmtNone
	}
}
