package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/a-marczewski/netsel/internal/profile"
	"github.com/a-marczewski/netsel/internal/scan"
)

type fakeCache struct {
	scored   map[scan.NetworkID]bool
	requests [][]scan.NetworkID
}

func (c *fakeCache) IsScored(id scan.NetworkID) bool { return c.scored[id] }
func (c *fakeCache) RequestScores(ids []scan.NetworkID) {
	c.requests = append(c.requests, ids)
}

type addCall struct {
	profile   profile.Profile
	principal string
}

type fakeStore struct {
	deleted    map[string]bool
	byIdentity map[string]*profile.Profile
	byID       map[int64]*profile.Profile
	nextID     int64

	addErr error
	setErr error

	addCalls       []addCall
	candidateCalls map[int64]scan.AccessPoint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		deleted:        make(map[string]bool),
		byIdentity:     make(map[string]*profile.Profile),
		byID:           make(map[int64]*profile.Profile),
		candidateCalls: make(map[int64]scan.AccessPoint),
	}
}

func (s *fakeStore) seed(p profile.Profile) *profile.Profile {
	s.nextID++
	p.ID = s.nextID
	stored := p
	s.byIdentity[p.SSID+"|"+p.KeyMgmt] = &stored
	s.byID[p.ID] = &stored
	return &stored
}

func (s *fakeStore) WasEphemeralDeleted(ssid string) bool { return s.deleted[ssid] }

func (s *fakeStore) ForObservation(ap scan.AccessPoint) (*profile.Profile, error) {
	key := scan.QuoteSSID(ap.SSID) + "|" + scan.KeyManagementFromCapabilities(ap.Capabilities)
	return s.byIdentity[key], nil
}

func (s *fakeStore) AddOrUpdate(p *profile.Profile, principal string) (int64, error) {
	s.addCalls = append(s.addCalls, addCall{profile: *p, principal: principal})
	if s.addErr != nil {
		return profile.UnassignedID, s.addErr
	}
	key := p.SSID + "|" + p.KeyMgmt
	if p.ID == profile.UnassignedID {
		if existing, ok := s.byIdentity[key]; ok {
			p.ID = existing.ID
		}
	}
	if p.ID == profile.UnassignedID {
		s.nextID++
		p.ID = s.nextID
	}
	stored := *p
	s.byIdentity[key] = &stored
	s.byID[p.ID] = &stored
	return p.ID, nil
}

func (s *fakeStore) SetCandidate(id int64, ap scan.AccessPoint, score int) error {
	if s.setErr != nil {
		return s.setErr
	}
	p, ok := s.byID[id]
	if !ok {
		return errors.New("profile not found")
	}
	s.candidateCalls[id] = ap
	p.CandidateBSSID = ap.BSSID
	p.CandidateScore = score
	return nil
}

func (s *fakeStore) Get(id int64) (*profile.Profile, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, errors.New("profile not found")
	}
	got := *p
	return &got, nil
}

type fakeOracle struct {
	answer   *profile.Profile
	err      error
	received [][]scan.AccessPoint
}

func (o *fakeOracle) Recommend(ctx context.Context, observations []scan.AccessPoint) (*profile.Profile, error) {
	copied := make([]scan.AccessPoint, len(observations))
	copy(copied, observations)
	o.received = append(o.received, copied)
	return o.answer, o.err
}

func newEvaluator(cache *fakeCache, store *fakeStore, oracle *fakeOracle) *Evaluator {
	return New(cache, store, oracle, "netsel", zap.NewNop(), nil)
}

var (
	homeAP = scan.AccessPoint{SSID: "Home", BSSID: "aa:bb:cc:00:00:01", SignalDBm: -45, Capabilities: "RSN PSK"}
	cafeAP = scan.AccessPoint{SSID: "CoffeeShack", BSSID: "aa:bb:cc:00:00:02", SignalDBm: -60}
)

func TestRefreshRequestsOnlyUnscored(t *testing.T) {
	cache := &fakeCache{scored: map[scan.NetworkID]bool{homeAP.ID(): true}}
	e := newEvaluator(cache, newFakeStore(), &fakeOracle{})

	e.Refresh([]scan.AccessPoint{homeAP, cafeAP})

	require.Len(t, cache.requests, 1)
	assert.Equal(t, []scan.NetworkID{cafeAP.ID()}, cache.requests[0])
}

func TestRefreshSkipsInvalidIdentities(t *testing.T) {
	cache := &fakeCache{scored: map[scan.NetworkID]bool{}}
	e := newEvaluator(cache, newFakeStore(), &fakeOracle{})

	malformed := scan.AccessPoint{SSID: "Ghost", BSSID: "not-a-mac"}
	noSSID := scan.AccessPoint{BSSID: "aa:bb:cc:00:00:09"}
	e.Refresh([]scan.AccessPoint{malformed, homeAP, noSSID})

	require.Len(t, cache.requests, 1)
	assert.Equal(t, []scan.NetworkID{homeAP.ID()}, cache.requests[0])
}

func TestRefreshNoRequestWhenAllScored(t *testing.T) {
	cache := &fakeCache{scored: map[scan.NetworkID]bool{homeAP.ID(): true, cafeAP.ID(): true}}
	e := newEvaluator(cache, newFakeStore(), &fakeOracle{})

	e.Refresh([]scan.AccessPoint{homeAP, cafeAP})

	assert.Empty(t, cache.requests)
}

func TestEvaluateDropsUntrustedWhenNotAllowed(t *testing.T) {
	oracle := &fakeOracle{}
	store := newFakeStore()
	e := newEvaluator(&fakeCache{}, store, oracle)

	// No persisted profile exists, so the lone observation is untrusted.
	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, false)

	assert.Nil(t, got)
	assert.Empty(t, oracle.received, "oracle must not see an empty candidate list")
	assert.Empty(t, store.addCalls)
}

func TestEvaluateKeepsTrustedWhenUntrustedNotAllowed(t *testing.T) {
	store := newFakeStore()
	saved := store.seed(profile.Profile{SSID: `"Home"`, BSSID: "aa:bb:cc:00:00:01", KeyMgmt: scan.KeyMgmtPSK})
	oracle := &fakeOracle{answer: saved}
	e := newEvaluator(&fakeCache{}, store, oracle)

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP, cafeAP}, nil, "", false, false)

	require.NotNil(t, got)
	assert.Equal(t, saved.ID, got.ID)
	require.Len(t, oracle.received, 1)
	require.Len(t, oracle.received[0], 1)
	assert.Equal(t, "Home", oracle.received[0][0].SSID)
	assert.False(t, oracle.received[0][0].Untrusted)
}

func TestEvaluateDropsDeletedEphemerals(t *testing.T) {
	store := newFakeStore()
	store.deleted[`"Home"`] = true
	oracle := &fakeOracle{}
	e := newEvaluator(&fakeCache{}, store, oracle)

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)

	assert.Nil(t, got)
	assert.Empty(t, oracle.received)
}

func TestEvaluatePreservesObservationOrder(t *testing.T) {
	store := newFakeStore()
	oracle := &fakeOracle{}
	e := newEvaluator(&fakeCache{}, store, oracle)

	third := scan.AccessPoint{SSID: "Attic", BSSID: "aa:bb:cc:00:00:03"}
	e.Evaluate(context.Background(), []scan.AccessPoint{cafeAP, homeAP, third}, nil, "", false, true)

	require.Len(t, oracle.received, 1)
	var ssids []string
	for _, ap := range oracle.received[0] {
		ssids = append(ssids, ap.SSID)
	}
	assert.Equal(t, []string{"CoffeeShack", "Home", "Attic"}, ssids)
}

func TestEvaluateNoAnswerIsNoCandidate(t *testing.T) {
	store := newFakeStore()
	e := newEvaluator(&fakeCache{}, store, &fakeOracle{answer: nil})

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)

	assert.Nil(t, got)
	assert.Empty(t, store.addCalls)
	assert.Empty(t, store.candidateCalls)
}

func TestEvaluateOracleErrorIsNoCandidate(t *testing.T) {
	store := newFakeStore()
	e := newEvaluator(&fakeCache{}, store, &fakeOracle{err: errors.New("timeout")})

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)

	assert.Nil(t, got)
	assert.Empty(t, store.addCalls)
}

func TestEvaluateMismatchedAnswerIsNoCandidate(t *testing.T) {
	store := newFakeStore()
	oracle := &fakeOracle{answer: &profile.Profile{SSID: `"Elsewhere"`, BSSID: "aa:bb:cc:00:00:99"}}
	e := newEvaluator(&fakeCache{}, store, oracle)

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)

	assert.Nil(t, got)
	assert.Empty(t, store.addCalls, "mismatch must not create profiles")
	assert.Empty(t, store.candidateCalls, "mismatch must not commit candidates")
}

func TestEvaluateExistingProfileSkipsCreation(t *testing.T) {
	store := newFakeStore()
	saved := store.seed(profile.Profile{SSID: `"Home"`, BSSID: "aa:bb:cc:00:00:01", KeyMgmt: scan.KeyMgmtPSK})
	oracle := &fakeOracle{answer: saved}
	e := newEvaluator(&fakeCache{}, store, oracle)

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)

	require.NotNil(t, got)
	assert.Equal(t, saved.ID, got.ID)
	assert.Empty(t, store.addCalls, "existing profile id must not trigger creation")
	assert.Equal(t, homeAP.BSSID, store.candidateCalls[saved.ID].BSSID)
	assert.Equal(t, homeAP.BSSID, got.CandidateBSSID)
}

func TestEvaluatePromotesUnknownRecommendation(t *testing.T) {
	store := newFakeStore()
	oracle := &fakeOracle{answer: &profile.Profile{SSID: `"Home"`, BSSID: "aa:bb:cc:00:00:01"}}
	e := newEvaluator(&fakeCache{}, store, oracle)

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)

	require.NotNil(t, got)
	assert.True(t, got.Ephemeral)
	assert.NotEqual(t, profile.UnassignedID, got.ID)
	assert.Equal(t, homeAP.BSSID, got.CandidateBSSID)

	require.Len(t, store.addCalls, 1)
	call := store.addCalls[0]
	assert.Equal(t, "netsel", call.principal, "ephemeral creation uses the system principal")
	assert.True(t, call.profile.Ephemeral)
	assert.Equal(t, scan.KeyMgmtPSK, call.profile.KeyMgmt, "key management derived from the observation")
}

func TestEvaluateKeepsAnswerKeyManagement(t *testing.T) {
	store := newFakeStore()
	oracle := &fakeOracle{answer: &profile.Profile{
		SSID: `"Home"`, BSSID: "aa:bb:cc:00:00:01", KeyMgmt: scan.KeyMgmtSAE,
	}}
	e := newEvaluator(&fakeCache{}, store, oracle)

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)

	require.NotNil(t, got)
	assert.Equal(t, scan.KeyMgmtSAE, got.KeyMgmt)
}

func TestEvaluatePromotionFailureIsNoCandidate(t *testing.T) {
	store := newFakeStore()
	store.addErr = errors.New("disk full")
	oracle := &fakeOracle{answer: &profile.Profile{SSID: `"Home"`, BSSID: "aa:bb:cc:00:00:01"}}
	e := newEvaluator(&fakeCache{}, store, oracle)

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)

	assert.Nil(t, got)
	assert.Empty(t, store.candidateCalls)
}

func TestEvaluateCommitFailureIsNoCandidate(t *testing.T) {
	store := newFakeStore()
	saved := store.seed(profile.Profile{SSID: `"Home"`, BSSID: "aa:bb:cc:00:00:01", KeyMgmt: scan.KeyMgmtPSK})
	store.setErr = errors.New("locked")
	e := newEvaluator(&fakeCache{}, store, &fakeOracle{answer: saved})

	got := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)

	assert.Nil(t, got)
}

func TestEvaluateIsIdempotentAcrossCycles(t *testing.T) {
	store := newFakeStore()
	// The oracle keeps answering with an unassigned descriptor for the same
	// network, as it would before its own state catches up.
	e := newEvaluator(&fakeCache{}, store, &fakeOracle{
		answer: &profile.Profile{SSID: `"Home"`, BSSID: "aa:bb:cc:00:00:01"},
	})

	first := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)
	require.NotNil(t, first)

	// Reset the descriptor's id mutation between cycles.
	e.oracle.(*fakeOracle).answer = &profile.Profile{SSID: `"Home"`, BSSID: "aa:bb:cc:00:00:01"}
	second := e.Evaluate(context.Background(), []scan.AccessPoint{homeAP}, nil, "", false, true)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID, "second cycle updates the same profile")
	assert.Len(t, store.byID, 1)
}

func TestName(t *testing.T) {
	e := newEvaluator(&fakeCache{}, newFakeStore(), &fakeOracle{})
	assert.Equal(t, "recommended", e.Name())
}
