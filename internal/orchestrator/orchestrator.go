// Package orchestrator drives one tracking run: fan identities out to a
// bounded worker pool, fetch each identity's recent posts through its
// configured strategy, reconcile against stored posts, and persist.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"engagement-tracker/internal/classify"
	"engagement-tracker/internal/config"
	"engagement-tracker/internal/reconcile"
	"engagement-tracker/internal/storage"
	"engagement-tracker/internal/strategy"
	"engagement-tracker/pkg/types"
)

// FetchResult is the per-identity outcome of one run.
type FetchResult struct {
	Identity     types.Identity
	Success      bool
	Posts        []types.Post
	AverageViews *int64
	ErrorKind    classify.Kind
	Err          error
}

// Failure is one failed identity in the run summary.
type Failure struct {
	Identity types.Identity `json:"identity"`
	Kind     classify.Kind  `json:"kind"`
	Message  string         `json:"message"`
}

// Summary aggregates a whole run. Alert is set when more than half of the
// attempted identities failed.
type Summary struct {
	Attempted    int           `json:"attempted"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	TotalPosts   int           `json:"total_posts"`
	NewPosts     int           `json:"new_posts"`
	UpdatedPosts int           `json:"updated_posts"`
	Duration     time.Duration `json:"duration"`
	Failures     []Failure     `json:"failures,omitempty"`
	Alert        bool          `json:"alert"`
}

// Orchestrator owns one run at a time. The strategy constructor is a field
// so tests can substitute scripted strategies.
type Orchestrator struct {
	cfg    *config.Config
	store  storage.Store
	engine *reconcile.Engine
	logger *logrus.Logger
	deps   strategy.Deps

	newStrategy func(types.Identity, strategy.Deps) (strategy.Strategy, error)
}

func New(cfg *config.Config, store storage.Store, deps strategy.Deps, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		engine:      reconcile.NewEngine(logger),
		logger:      logger,
		deps:        deps,
		newStrategy: strategy.ForIdentity,
	}
}

// Run executes one full tracking pass over every stored identity.
// Fetching is concurrent across up to Concurrency workers; persistence
// starts only after the whole batch has been collected, so partial
// ordering between concurrent fetches never leaks into storage.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	identities, err := o.store.ReadIdentities()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read identities: %w", err)
	}
	if len(identities) == 0 {
		o.logger.Warn("no identities to track")
		return Summary{Duration: time.Since(start)}, nil
	}

	o.logger.Infof("tracking %d identities with %d workers", len(identities), o.cfg.Tracker.Concurrency)

	jobs := make(chan types.Identity)
	results := make(chan FetchResult)

	var wg sync.WaitGroup
	for w := 0; w < o.cfg.Tracker.Concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for identity := range jobs {
				results <- o.trackOne(ctx, identity)
			}
		}(w)
	}

	go func() {
		defer close(jobs)
		for _, identity := range identities {
			select {
			case jobs <- identity:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]FetchResult, 0, len(identities))
	for result := range results {
		collected = append(collected, result)
	}

	// Cancellation stops the feeder early, so identities it never handed
	// out were not attempted and must not skew the failure ratio.
	if skipped := len(identities) - len(collected); skipped > 0 {
		o.logger.Warnf("run cancelled before %d of %d identities were dispatched", skipped, len(identities))
	}

	summary := Summary{Attempted: len(collected)}
	for _, result := range collected {
		if result.Success {
			appended, updated, perr := o.persist(result)
			if perr != nil {
				o.logger.Errorf("persistence failed for %s: %v", result.Identity, perr)
				result.Success = false
				result.ErrorKind = classify.KindUnknown
				result.Err = perr
			} else {
				summary.Succeeded++
				summary.TotalPosts += len(result.Posts)
				summary.NewPosts += appended
				summary.UpdatedPosts += updated
				continue
			}
		}

		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{
			Identity: result.Identity,
			Kind:     result.ErrorKind,
			Message:  result.Err.Error(),
		})
		o.logger.Warnf("identity %s failed (%s): %v", result.Identity, result.ErrorKind, result.Err)
	}

	summary.Duration = time.Since(start)
	summary.Alert = summary.Failed*2 > summary.Attempted
	if summary.Alert {
		o.logger.Errorf("run alert: %d of %d identities failed", summary.Failed, summary.Attempted)
	}
	o.logger.Infof("run finished: %d succeeded, %d failed, %d posts (%d new, %d updated) in %s",
		summary.Succeeded, summary.Failed, summary.TotalPosts,
		summary.NewPosts, summary.UpdatedPosts, summary.Duration.Round(time.Millisecond))

	return summary, nil
}

// trackOne fetches one identity through its strategy. All failure modes,
// panics included, are folded into a failed FetchResult so one identity
// can never take down the run.
func (o *Orchestrator) trackOne(ctx context.Context, identity types.Identity) (result FetchResult) {
	result = FetchResult{Identity: identity}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.ErrorKind = classify.KindUnknown
			result.Err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()

	strat, err := o.newStrategy(identity, o.deps)
	if err != nil {
		result.ErrorKind = classify.KindUnknown
		result.Err = err
		return result
	}

	if err := strat.Initialize(); err != nil {
		result.ErrorKind = classify.KindOf(err)
		result.Err = fmt.Errorf("initialization failed: %w", err)
		return result
	}
	defer strat.Cleanup()

	// In-flight fetches run to their own completion or timeout; shutdown
	// stops new work from being dispatched but never cuts one mid-flight.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Tracker.RequestTimeoutDuration())
	defer cancel()

	posts, err := strat.FetchRecentPosts(fetchCtx, identity, o.cfg.Tracker.FetchCount)
	if err != nil {
		result.ErrorKind = classify.KindOf(err)
		result.Err = err
		return result
	}

	recent := reconcile.SelectRecent(posts, o.cfg.Tracker.RecencyWindow)
	result.Posts = posts
	result.AverageViews = reconcile.ComputeAverage(recent)
	result.Success = true

	o.logger.Infof("fetched %d posts for %s, average views %s",
		len(posts), identity, formatAvg(result.AverageViews))
	return result
}

// persist reconciles one successful result against the store and writes
// the outcome plus the new rolling average.
func (o *Orchestrator) persist(result FetchResult) (appended, updated int, err error) {
	existing, err := o.store.ReadExistingPosts(result.Identity)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read existing posts: %w", err)
	}

	outcome := o.engine.Reconcile(existing, result.Posts)

	if len(outcome.ToAppend) > 0 {
		if err := o.store.AppendPosts(outcome.ToAppend); err != nil {
			return 0, 0, fmt.Errorf("failed to append posts: %w", err)
		}
	}
	if len(outcome.ToUpdate) > 0 {
		if err := o.store.UpdateExistingPosts(outcome.ToUpdate); err != nil {
			return 0, 0, fmt.Errorf("failed to update posts: %w", err)
		}
	}

	if err := o.store.UpdateAverageViews(result.Identity, result.AverageViews); err != nil {
		return 0, 0, fmt.Errorf("failed to update average views: %w", err)
	}

	return len(outcome.ToAppend), len(outcome.ToUpdate), nil
}

func formatAvg(avg *int64) string {
	if avg == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *avg)
}
