package profile

import (
	"time"
)

// UnassignedID is the sentinel for a profile descriptor that has not been
// persisted yet. Persisted ids start at 1.
const UnassignedID int64 = 0

// Profile is a persisted network configuration. SSID is stored quoted, the
// way supplicant configs carry it; use scan.UnquoteSSID when comparing
// against observations.
type Profile struct {
	ID        int64  `json:"id"`
	SSID      string `json:"ssid"`
	BSSID     string `json:"bssid,omitempty"`
	KeyMgmt   string `json:"key_mgmt"`
	Ephemeral bool   `json:"ephemeral"`
	CreatedBy string `json:"created_by,omitempty"`

	// Best-known candidate for this profile, refreshed on every cycle that
	// reselects it.
	CandidateBSSID     string    `json:"candidate_bssid,omitempty"`
	CandidateSignalDBm int       `json:"candidate_signal_dbm,omitempty"`
	CandidateFrequency int       `json:"candidate_frequency,omitempty"`
	CandidateScore     int       `json:"candidate_score,omitempty"`
	CandidateSeenAt    time.Time `json:"candidate_seen_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Persisted reports whether the profile refers to a stored row.
func (p *Profile) Persisted() bool {
	return p != nil && p.ID != UnassignedID
}
