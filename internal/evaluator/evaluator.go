package evaluator

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a-marczewski/netsel/internal/metrics"
	"github.com/a-marczewski/netsel/internal/profile"
	"github.com/a-marczewski/netsel/internal/scan"
)

const evaluatorName = "recommended"

// candidateScore is the fixed score recorded on candidate commits. The
// scoring specifics live in the recommendation service, not here.
const candidateScore = 0

// Cycle outcome labels.
const (
	OutcomeSelected        = "selected"
	OutcomeEmpty           = "empty"
	OutcomeNoAnswer        = "no_answer"
	OutcomeMismatch        = "mismatch"
	OutcomePromotionFailed = "promotion_failed"
	OutcomeCommitFailed    = "commit_failed"
)

// ScoreCache answers whether a network already has a known quality score and
// accepts asynchronous refresh requests.
type ScoreCache interface {
	IsScored(id scan.NetworkID) bool
	RequestScores(ids []scan.NetworkID)
}

// ConfigStore persists named network profiles.
type ConfigStore interface {
	WasEphemeralDeleted(ssid string) bool
	ForObservation(ap scan.AccessPoint) (*profile.Profile, error)
	AddOrUpdate(p *profile.Profile, principal string) (int64, error)
	SetCandidate(id int64, ap scan.AccessPoint, score int) error
	Get(id int64) (*profile.Profile, error)
}

// Oracle returns at most one recommended network for a candidate list.
// A nil answer means no recommendation. The context bounds the call.
type Oracle interface {
	Recommend(ctx context.Context, observations []scan.AccessPoint) (*profile.Profile, error)
}

// Evaluator decides whether the external recommendation service should
// override default network selection. It owns no state across cycles; every
// Evaluate call works only on its inputs and the collaborators.
type Evaluator struct {
	cache     ScoreCache
	store     ConfigStore
	oracle    Oracle
	principal string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New creates an evaluator. principal is the system identity under which
// ephemeral profiles are created. metrics may be nil.
func New(cache ScoreCache, store ConfigStore, oracle Oracle, principal string, logger *zap.Logger, m *metrics.Metrics) *Evaluator {
	return &Evaluator{
		cache:     cache,
		store:     store,
		oracle:    oracle,
		principal: principal,
		logger:    logger,
		metrics:   m,
	}
}

// Name returns the evaluator's diagnostic tag.
func (e *Evaluator) Name() string {
	return evaluatorName
}

// Refresh primes the score cache for future cycles: it collects the observed
// identities that have no known score and submits them as one asynchronous
// batch. Observations with malformed identity fields are logged and skipped.
// Never blocks and never affects the current cycle's outcome.
func (e *Evaluator) Refresh(observations []scan.AccessPoint) {
	var unscored []scan.NetworkID
	for _, ap := range observations {
		id := ap.ID()
		if e.cache.IsScored(id) {
			continue
		}
		if err := id.Validate(); err != nil {
			e.logger.Warn("skipping network with invalid identity for score request",
				zap.String("ssid", id.SSID), zap.String("bssid", id.BSSID), zap.Error(err))
			continue
		}
		unscored = append(unscored, id)
	}

	if len(unscored) > 0 {
		e.cache.RequestScores(unscored)
		e.metrics.RefreshBatch(len(unscored))
	}
}

// Evaluate runs one evaluation cycle and returns the recommended profile
// with its candidate committed, or nil when the cycle produced no candidate.
// Every failure path converges on a nil return; nothing propagates upward.
func (e *Evaluator) Evaluate(ctx context.Context, observations []scan.AccessPoint,
	current *profile.Profile, currentBSSID string, connected, untrustedAllowed bool) *profile.Profile {

	cycle := uuid.NewString()
	logger := e.logger.With(zap.String("cycle", cycle))

	eligible := e.filterCandidates(observations, untrustedAllowed)
	if len(eligible) == 0 {
		logger.Debug("no eligible networks to recommend")
		e.metrics.CycleFinished(OutcomeEmpty)
		return nil
	}

	answer, err := e.oracle.Recommend(ctx, eligible)
	if err != nil {
		logger.Warn("recommendation request failed", zap.Error(err))
		e.metrics.CycleFinished(OutcomeNoAnswer)
		return nil
	}
	if answer == nil {
		logger.Debug("no recommendation for this cycle")
		e.metrics.CycleFinished(OutcomeNoAnswer)
		return nil
	}

	matched, ok := matchObservation(eligible, answer)
	if !ok {
		logger.Error("recommendation matched no observation",
			zap.String("ssid", answer.SSID), zap.String("bssid", answer.BSSID))
		e.metrics.CycleFinished(OutcomeMismatch)
		return nil
	}

	id := answer.ID
	if id == profile.UnassignedID {
		id = e.addEphemeral(answer, matched, logger)
		if id == profile.UnassignedID {
			e.metrics.CycleFinished(OutcomePromotionFailed)
			return nil
		}
	}

	if err := e.store.SetCandidate(id, matched, candidateScore); err != nil {
		logger.Error("failed to record candidate",
			zap.Int64("profile", id), zap.String("bssid", matched.BSSID), zap.Error(err))
		e.metrics.CycleFinished(OutcomeCommitFailed)
		return nil
	}

	selected, err := e.store.Get(id)
	if err != nil {
		logger.Error("failed to load selected profile", zap.Int64("profile", id), zap.Error(err))
		e.metrics.CycleFinished(OutcomeCommitFailed)
		return nil
	}

	logger.Info("recommendation selected",
		zap.Int64("profile", id),
		zap.String("ssid", selected.SSID),
		zap.String("bssid", matched.BSSID),
		zap.Bool("ephemeral", selected.Ephemeral))
	e.metrics.CycleFinished(OutcomeSelected)
	return selected
}

// filterCandidates selects the observations eligible for recommendation,
// preserving input order. Networks whose ephemeral profile the user recently
// deleted are dropped; unknown networks are flagged untrusted and dropped
// unless untrusted networks are allowed.
func (e *Evaluator) filterCandidates(observations []scan.AccessPoint, untrustedAllowed bool) []scan.AccessPoint {
	var eligible []scan.AccessPoint
	for _, ap := range observations {
		if e.store.WasEphemeralDeleted(scan.QuoteSSID(ap.SSID)) {
			continue
		}

		known, err := e.store.ForObservation(ap)
		if err != nil {
			e.logger.Warn("profile lookup failed, treating network as untrusted",
				zap.String("ssid", ap.SSID), zap.Error(err))
		}
		ap.Untrusted = known == nil

		if !untrustedAllowed && ap.Untrusted {
			continue
		}
		eligible = append(eligible, ap)
	}
	return eligible
}

// matchObservation finds the observation whose identity equals the answer's,
// comparing SSIDs with quoting removed.
func matchObservation(observations []scan.AccessPoint, answer *profile.Profile) (scan.AccessPoint, bool) {
	ssid := scan.UnquoteSSID(answer.SSID)
	for _, ap := range observations {
		if ap.SSID == ssid && ap.BSSID == answer.BSSID {
			return ap, true
		}
	}
	return scan.AccessPoint{}, false
}

// addEphemeral promotes a not-yet-persisted recommendation into a stored
// ephemeral profile and returns its id, or the unassigned sentinel on
// failure. At most one profile is created per cycle; a descriptor without a
// key management policy gets one derived from the matched observation.
func (e *Evaluator) addEphemeral(answer *profile.Profile, ap scan.AccessPoint, logger *zap.Logger) int64 {
	if answer.KeyMgmt == "" {
		answer.KeyMgmt = scan.KeyManagementFromCapabilities(ap.Capabilities)
	}
	answer.Ephemeral = true

	id, err := e.store.AddOrUpdate(answer, e.principal)
	if err != nil {
		logger.Warn("failed to add ephemeral network",
			zap.String("ssid", answer.SSID), zap.String("bssid", ap.BSSID), zap.Error(err))
		return profile.UnassignedID
	}

	logger.Info("ephemeral network added",
		zap.Int64("profile", id), zap.String("ssid", answer.SSID))
	e.metrics.ProfileCreated()
	return id
}
