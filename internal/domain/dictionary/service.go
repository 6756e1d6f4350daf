package dictionary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/datafire-practice/patient-registry-backend/pkg/pagination"
)

// lookupTimeout bounds a store read shared by concurrent cache misses.
const lookupTimeout = 10 * time.Second

// Recorder receives dictionary metrics. *metrics.Collector satisfies it.
type Recorder interface {
	ObserveSync(outcome string, elapsed time.Duration, entries int)
	ObserveCacheLookup(hit bool, size int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSync(string, time.Duration, int) {}
func (nopRecorder) ObserveCacheLookup(bool, int) {}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service owns the lookup cache and is the only writer of the dictionary
// table. Lookups go cache first; syncs replace the table and then purge the
// cache. At most one sync runs at a time per process.
type Service struct {
	repo    Repository
	source  Fetcher
	parser  *Parser
	cache   *LookupCache
	metrics Recorder
	logger  zerolog.Logger
	now     func() time.Time

	loads   singleflight.Group
	syncMu  sync.Mutex
	syncing atomic.Bool

	stateMu     sync.RWMutex
	lastSync    *SyncResult
	lastSuccess *SyncResult
}

func NewService(repo Repository, source Fetcher, parser *Parser, cache *LookupCache, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		source:  source,
		parser:  parser,
		cache:   cache,
		metrics: nopRecorder{},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetByCode resolves a code through the cache, falling back to the store.
// Concurrent misses for the same code share one store read, and one caller
// giving up does not fail the others. Misses in the store are returned as
// ErrNotFound and never cached.
func (s *Service) GetByCode(ctx context.Context, code string) (*Entry, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}

	if e, ok := s.cache.Get(code); ok {
		s.metrics.ObserveCacheLookup(true, s.cache.Len())
		return &e, nil
	}
	s.metrics.ObserveCacheLookup(false, s.cache.Len())

	// The shared read outlives any single caller, so it runs on a detached
	// context with its own deadline. Each caller still stops waiting when
	// its own context ends.
	ch := s.loads.DoChan(code, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		gen := s.cache.Generation()
		e, err := s.repo.GetByCode(readCtx, code)
		if err != nil {
			return nil, err
		}
		s.cache.Add(gen, *e)
		return *e, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("dictionary lookup %s: %w", code, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("dictionary lookup %s: %w", code, res.Err)
		}
		e := res.Val.(Entry)
		return &e, nil
	}
}

// GetAll returns the whole dictionary and caches every entry.
func (s *Service) GetAll(ctx context.Context) ([]Entry, error) {
	gen := s.cache.Generation()
	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Add(gen, entries...)
	return entries, nil
}

// Search returns one page of entries whose code or name contains query.
// A blank query pages through the whole dictionary. Returned entries are cached.
func (s *Service) Search(ctx context.Context, query string, p pagination.Params) ([]Entry, int, error) {
	gen := s.cache.Generation()
	entries, total, err := s.repo.Search(ctx, strings.TrimSpace(query), p)
	if err != nil {
		return nil, 0, err
	}
	s.cache.Add(gen, entries...)
	return entries, total, nil
}

// SyncNow fetches, parses and installs a fresh dictionary. It returns
// ErrSyncInProgress without waiting if another sync holds the lock.
// A parse that yields no valid rows is reported as OutcomeSkipped with a nil
// error and changes nothing. Fetch and parse failures leave the store and
// cache untouched.
func (s *Service) SyncNow(ctx context.Context) (*SyncResult, error) {
	if !s.syncMu.TryLock() {
		s.metrics.ObserveSync(string(OutcomeBusy), 0, 0)
		return nil, ErrSyncInProgress
	}
	defer s.syncMu.Unlock()
	s.syncing.Store(true)
	defer s.syncing.Store(false)

	res := &SyncResult{StartedAt: s.now()}
	s.logger.Info().Msg("dictionary sync started")

	snap, err := s.source.Fetch(ctx)
	if err != nil {
		return s.fail(res, StageFetch, err)
	}
	res.Origin = snap.Origin

	entries, stats, err := s.parser.Parse(bytes.NewReader(snap.Data))
	res.Parse = stats
	if err != nil {
		return s.fail(res, StageParse, err)
	}

	if len(entries) == 0 {
		res.Outcome = OutcomeSkipped
		s.finish(res)
		s.logger.Warn().
			Str("origin", string(res.Origin)).
			Int("rows", stats.Rows).
			Int("invalid", stats.Invalid).
			Int("short", stats.Short).
			Msg("dictionary sync skipped: no valid rows parsed")
		return res, nil
	}

	n, err := s.repo.Replace(ctx, entries)
	if err != nil {
		// The store may have been cleared before failing.
		s.cache.Purge()
		return s.fail(res, StageStore, err)
	}
	s.cache.Purge()

	res.Outcome = OutcomeUpdated
	res.Updated = n
	s.finish(res)
	s.logger.Info().
		Str("origin", string(res.Origin)).
		Int("updated", n).
		Int("duplicates", stats.Duplicates).
		Int("invalid", stats.Invalid).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("dictionary sync completed")
	return res, nil
}

func (s *Service) fail(res *SyncResult, stage string, err error) (*SyncResult, error) {
	syncErr := &SyncError{Stage: stage, Err: err}
	res.Outcome = OutcomeFailed
	res.Error = syncErr.Error()
	s.finish(res)
	s.logger.Error().Err(err).Str("stage", stage).Msg("dictionary sync failed")
	return res, syncErr
}

func (s *Service) finish(res *SyncResult) {
	res.FinishedAt = s.now()
	s.metrics.ObserveSync(string(res.Outcome), res.FinishedAt.Sub(res.StartedAt), res.Updated)

	snapshot := *res
	s.stateMu.Lock()
	s.lastSync = &snapshot
	if res.Outcome == OutcomeUpdated {
		s.lastSuccess = &snapshot
	}
	s.stateMu.Unlock()
}

// LastSync returns the most recent sync result, or nil before the first run.
func (s *Service) LastSync() *SyncResult {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.lastSync == nil {
		return nil
	}
	res := *s.lastSync
	return &res
}

// Status reports the table size, sync state and cache counters.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Entries: n,
		Syncing: s.syncing.Load(),
		Cache:   s.cache.Stats(),
	}
	s.stateMu.RLock()
	if s.lastSync != nil {
		last := *s.lastSync
		st.LastSync = &last
	}
	if s.lastSuccess != nil {
		ok := *s.lastSuccess
		st.LastSuccess = &ok
	}
	s.stateMu.RUnlock()
	return st, nil
}
