package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/a-marczewski/netsel/internal/profile"
	"github.com/a-marczewski/netsel/internal/scan"
)

// Client talks JSON over HTTP to the local recommendation/scoring service.
// It serves both roles this daemon needs from that service: batch score
// fetches for the cache and the synchronous per-cycle recommendation call.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the service at baseURL. timeout bounds
// every request; the recommendation call additionally honors its context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type scoreRequest struct {
	Networks []scan.NetworkID `json:"networks"`
}

type networkScore struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
	Score int    `json:"score"`
}

type scoreResponse struct {
	Scores []networkScore `json:"scores"`
}

// FetchScores requests scores for a batch of identities.
func (c *Client) FetchScores(ctx context.Context, ids []scan.NetworkID) (map[scan.NetworkID]int, error) {
	var resp scoreResponse
	if err := c.post(ctx, "/v1/scores", scoreRequest{Networks: ids}, &resp); err != nil {
		return nil, err
	}

	scores := make(map[scan.NetworkID]int, len(resp.Scores))
	for _, s := range resp.Scores {
		scores[scan.NetworkID{SSID: s.SSID, BSSID: s.BSSID}] = s.Score
	}
	return scores, nil
}

type recommendRequest struct {
	Observations []scan.AccessPoint `json:"observations"`
}

type recommendedNetwork struct {
	NetworkID int64  `json:"network_id"`
	SSID      string `json:"ssid"`
	BSSID     string `json:"bssid"`
	KeyMgmt   string `json:"key_mgmt,omitempty"`
}

type recommendResponse struct {
	Network *recommendedNetwork `json:"network"`
}

// Recommend submits the filtered observation list and returns the service's
// single suggestion as a profile descriptor, or nil when the service has no
// recommendation. The descriptor's id is the unassigned sentinel when the
// suggested network has no persisted profile yet.
func (c *Client) Recommend(ctx context.Context, observations []scan.AccessPoint) (*profile.Profile, error) {
	// TODO: pass the currently recommended network as a hint.
	var resp recommendResponse
	if err := c.post(ctx, "/v1/recommend", recommendRequest{Observations: observations}, &resp); err != nil {
		return nil, err
	}
	if resp.Network == nil {
		return nil, nil
	}

	return &profile.Profile{
		ID:      resp.Network.NetworkID,
		SSID:    scan.QuoteSSID(resp.Network.SSID),
		BSSID:   resp.Network.BSSID,
		KeyMgmt: resp.Network.KeyMgmt,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
