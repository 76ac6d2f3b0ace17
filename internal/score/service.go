package score

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a-marczewski/netsel/internal/scan"
)

const requestBufferSize = 16

// Fetcher retrieves scores for a batch of network identities from the
// scoring service.
type Fetcher interface {
	FetchScores(ctx context.Context, ids []scan.NetworkID) (map[scan.NetworkID]int, error)
}

type batch struct {
	id  string
	ids []scan.NetworkID
}

// Service combines the score cache with an async requester. RequestScores is
// fire-and-forget: the submitting cycle never waits for the fetch, and the
// fetched scores become visible to future cycles through the cache.
type Service struct {
	cache     *TTLCache
	fetcher   Fetcher
	logger    *zap.Logger
	timeout   time.Duration
	requests  chan batch
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewService creates the score service and starts its fetch worker.
// timeout bounds each batch fetch against the scoring service.
func NewService(cache *TTLCache, fetcher Fetcher, timeout time.Duration, logger *zap.Logger) *Service {
	s := &Service{
		cache:    cache,
		fetcher:  fetcher,
		logger:   logger,
		timeout:  timeout,
		requests: make(chan batch, requestBufferSize),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// IsScored reports whether a fresh score is cached for the identity.
func (s *Service) IsScored(id scan.NetworkID) bool {
	return s.cache.IsScored(id)
}

// Score returns the cached score for the identity, if fresh.
func (s *Service) Score(id scan.NetworkID) (int, bool) {
	return s.cache.Score(id)
}

// RequestScores submits one batched score request. Never blocks: if the
// request buffer is full the batch is dropped and a later cycle retries
// naturally.
func (s *Service) RequestScores(ids []scan.NetworkID) {
	if len(ids) == 0 {
		return
	}

	b := batch{id: uuid.NewString(), ids: ids}
	select {
	case s.requests <- b:
		s.logger.Debug("score request submitted",
			zap.String("batch", b.id), zap.Int("networks", len(ids)))
	default:
		s.logger.Warn("score request buffer full, dropping batch",
			zap.String("batch", b.id), zap.Int("networks", len(ids)))
	}
}

// Close stops the worker after draining pending batches.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.requests)
	})
	s.wg.Wait()
}

func (s *Service) worker() {
	defer s.wg.Done()

	for b := range s.requests {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		scores, err := s.fetcher.FetchScores(ctx, b.ids)
		cancel()
		if err != nil {
			s.logger.Warn("score fetch failed",
				zap.String("batch", b.id), zap.Int("networks", len(b.ids)), zap.Error(err))
			continue
		}
		for id, score := range scores {
			s.cache.Put(id, score)
		}
		s.logger.Debug("score batch cached",
			zap.String("batch", b.id), zap.Int("scores", len(scores)))
	}
}
