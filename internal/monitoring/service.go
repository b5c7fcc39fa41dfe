package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashtags/hashtag-timeline/internal/metrics"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/hashtags/hashtag-timeline/internal/retry"
	"github.com/hashtags/hashtag-timeline/internal/twitter"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// State is the lifecycle phase of the ingestion loop
type State int32

const (
	Bootstrapping State = iota
	Polling
	Stopped
)

func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "bootstrapping"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Authorizer restores persisted tokens and obtains the app token at startup
type Authorizer interface {
	LoadState(ctx context.Context)
	AuthorizeAppWithRetry(ctx context.Context, policy retry.Policy) (string, error)
}

// Searcher runs one search request
type Searcher interface {
	Search(ctx context.Context, query models.SearchQuery) ([]models.Tweet, error)
}

// Sink receives resolved tweets, one at a time, most recent last
type Sink interface {
	Append(ctx context.Context, entry models.TimelineEntry) error
}

// Options configure the ingestion loop
type Options struct {
	Query        string
	ResultType   models.ResultType
	Count        int
	PollInterval time.Duration
	EmitDelay    time.Duration
	AuthPolicy   retry.Policy
}

// Status is a point-in-time view of the loop for the status endpoint
type Status struct {
	State             string    `json:"state"`
	Query             string    `json:"query"`
	LastSeenID        int64     `json:"last_seen_id"`
	LastCycle         time.Time `json:"last_cycle"`
	LastCycleDuration string    `json:"last_cycle_duration"`
	Cycles            int64     `json:"cycles"`
	SearchFailures    int64     `json:"search_failures"`
	Emitted           int64     `json:"emitted"`
	Skipped           int64     `json:"skipped"`
	PresentIDs        int       `json:"present_ids"`
	LastError         string    `json:"last_error,omitempty"`
}

// Service polls the search endpoint and feeds new media tweets to the sink
type Service struct {
	opts    Options
	auth    Authorizer
	search  Searcher
	sink    Sink
	clock   clockwork.Clock
	metrics *metrics.IngestionMetrics
	breaker *gobreaker.CircuitBreaker

	state atomic.Int32

	mu         sync.RWMutex
	lastSeenID int64
	presentIDs map[int64]struct{}
	status     Status
}

// NewService creates an ingestion loop in the Bootstrapping state
func NewService(opts Options, auth Authorizer, search Searcher, sink Sink, clock clockwork.Clock, m *metrics.IngestionMetrics) *Service {
	if opts.ResultType == "" {
		opts.ResultType = models.ResultMixed
	}
	if opts.AuthPolicy.Clock == nil {
		opts.AuthPolicy.Clock = clock
	}

	s := &Service{
		opts:       opts,
		auth:       auth,
		search:     search,
		sink:       sink,
		clock:      clock,
		metrics:    m,
		presentIDs: make(map[int64]struct{}),
		status:     Status{Query: opts.Query},
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "twitter-search",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return s
}

// Run bootstraps the app token and then polls until ctx is cancelled.
// A bootstrap failure is returned and leaves the loop Stopped.
func (s *Service) Run(ctx context.Context) error {
	s.setState(Bootstrapping)
	defer s.setState(Stopped)

	logrus.WithField("query", s.opts.Query).Info("Bootstrapping timeline ingestion")

	s.auth.LoadState(ctx)
	if _, err := s.auth.AuthorizeAppWithRetry(ctx, s.opts.AuthPolicy); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.recordError(err)
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	s.setState(Polling)
	logrus.Infof("Polling every %v", s.opts.PollInterval)

	for {
		start := s.clock.Now()
		s.runCycle(ctx)

		// The interval is measured from the start of the cycle, so slow
		// searches and emit pacing shorten the idle wait.
		if !s.sleep(ctx, s.opts.PollInterval-s.clock.Since(start)) {
			logrus.Info("Timeline ingestion stopped")
			return nil
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := s.clock.Now()
	sinceID := s.LastSeenID()
	log := logrus.WithFields(logrus.Fields{
		"cycle_id": uuid.NewString(),
		"query":    s.opts.Query,
		"since_id": sinceID,
	})
	s.metrics.Cycles.Inc()

	query := models.SearchQuery{
		Query:      s.opts.Query,
		ResultType: s.opts.ResultType,
		Count:      s.opts.Count,
		SinceID:    sinceID,
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.search.Search(ctx, query)
	})
	if err != nil {
		reason := failureReason(err)
		s.metrics.SearchFailures.WithLabelValues(reason).Inc()
		log.WithError(err).WithField("reason", reason).Warn("Search failed, skipping cycle")
		s.finishCycle(start, err, func(st *Status) { st.SearchFailures++ })
		return
	}
	tweets := result.([]models.Tweet)

	s.advanceLastSeen(tweets)
	log.WithField("results", len(tweets)).Debug("Search returned")

	var emitted, skipped int64
	// Statuses arrive newest first; emit oldest first so the newest ends on top
	for i := len(tweets) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			break
		}
		status := tweets[i]

		if sinceID > 0 && status.ID <= sinceID {
			s.skip("stale", &skipped)
			continue
		}

		display := twitter.ResolveDisplayStatus(status)
		if !s.markPresent(display.ID) {
			s.skip("duplicate", &skipped)
			continue
		}

		entry, ok := twitter.Resolve(status, s.clock.Now())
		if !ok {
			s.Forget([]int64{display.ID})
			s.skip("no_media", &skipped)
			continue
		}

		if err := s.sink.Append(ctx, entry); err != nil {
			s.Forget([]int64{display.ID})
			s.skip("sink_error", &skipped)
			log.WithError(err).WithField("tweet_id", display.ID).Warn("Failed to append tweet")
			continue
		}

		emitted++
		s.metrics.Emitted.Inc()
		log.WithField("tweet_id", display.ID).Debug("Appended tweet")

		if !s.sleep(ctx, s.opts.EmitDelay) {
			break
		}
	}

	log.WithFields(logrus.Fields{"emitted": emitted, "skipped": skipped}).Info("Cycle complete")
	s.finishCycle(start, nil, func(st *Status) {
		st.Emitted += emitted
		st.Skipped += skipped
	})
}

func (s *Service) skip(reason string, counter *int64) {
	*counter++
	s.metrics.Skipped.WithLabelValues(reason).Inc()
}

func (s *Service) finishCycle(start time.Time, err error, update func(*Status)) {
	duration := s.clock.Since(start)
	s.metrics.CycleDuration.Observe(duration.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Cycles++
	s.status.LastCycle = start
	s.status.LastCycleDuration = duration.String()
	if err != nil {
		s.status.LastError = err.Error()
	}
	update(&s.status)
}

func (s *Service) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastError = err.Error()
}

// advanceLastSeen raises the high-water mark to the largest id in the page.
// It never moves backwards.
func (s *Service) advanceLastSeen(tweets []models.Tweet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tweets {
		if t.ID > s.lastSeenID {
			s.lastSeenID = t.ID
		}
	}
	s.metrics.LastSeenID.Set(float64(s.lastSeenID))
}

// markPresent records id and reports false if it was already present
func (s *Service) markPresent(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presentIDs[id]; ok {
		return false
	}
	s.presentIDs[id] = struct{}{}
	return true
}

// Forget drops ids that are no longer on display so they may be shown again.
// It is registered as the timeline's eviction callback.
func (s *Service) Forget(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.presentIDs, id)
	}
}

// sleep waits for d on the service clock and reports false if ctx ended first
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

func (s *Service) setState(state State) {
	s.state.Store(int32(state))
}

// State returns the current lifecycle phase
func (s *Service) State() State {
	return State(s.state.Load())
}

// LastSeenID returns the search high-water mark
func (s *Service) LastSeenID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeenID
}

// IsPresent reports whether id is currently recorded as displayed
func (s *Service) IsPresent(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.presentIDs[id]
	return ok
}

// Status returns a snapshot of loop progress
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.status
	st.State = s.State().String()
	st.LastSeenID = s.lastSeenID
	st.PresentIDs = len(s.presentIDs)
	return st
}

// GetMetrics returns the status snapshot as indented JSON
func (s *Service) GetMetrics() string {
	data, _ := json.MarshalIndent(s.Status(), "", "  ")
	return string(data)
}

func failureReason(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "circuit_open"
	}
	var searchErr *twitter.SearchError
	if errors.As(err, &searchErr) {
		switch {
		case searchErr.IsRateLimited():
			return "rate_limited"
		case searchErr.IsAuthFailure():
			return "unauthorized"
		}
	}
	return "error"
}
