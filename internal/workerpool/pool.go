// Package workerpool fans a discovered set of filenames out across a bounded
// number of concurrent pipeline.Runner invocations (spec.md §4.10), using
// golang.org/x/sync/errgroup in place of the teacher's hand-rolled
// goroutine+channel pool in internal/services/worker_monitor.
package workerpool

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"fileingest/internal/lineage"
)

// Runner is the single-file pipeline entry point the pool drains the queue
// against. pipeline.Runner.Run satisfies this directly.
type Runner interface {
	Run(ctx context.Context, filename string) (lineage.OutcomeCategory, error)
}

// Outcome is one filename's result, recorded once the worker that drew it
// returns (spec.md §4.10's result tuple: outcome, filename, error string).
type Outcome struct {
	Filename string
	Category lineage.OutcomeCategory
	Err      error
}

// Summary aggregates a drained run's outcomes for the webhook notifier.
type Summary struct {
	Total  int
	Counts map[lineage.OutcomeCategory]int
	Failed []Outcome
}

// AnyUnhandled reports whether the run produced a result the operator should
// be paged for: an unhandled failure or a file matching no declared source.
func (s Summary) AnyUnhandled() bool {
	return s.Counts[lineage.OutcomeUnhandledFailure] > 0 || s.Counts[lineage.OutcomeNoSourceMatched] > 0
}

// Pool runs one Runner per filename, at most N concurrently.
type Pool struct {
	runner Runner
	n      int

	mu       sync.Mutex
	outcomes []Outcome
}

// New builds a Pool. n <= 0 defaults to the number of logical CPUs, mirroring
// spec.md §4.10's "default physical core count".
func New(runner Runner, n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{runner: runner, n: n}
}

// Run enumerates filenames against the bounded pool and blocks until every
// file has been attempted. A per-file error is captured in the result tuple,
// never propagated to the group — one file's failure must never cancel the
// others (spec.md §5).
func (p *Pool) Run(ctx context.Context, filenames []string) Summary {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.n)

	for _, filename := range filenames {
		filename := filename
		g.Go(func() error {
			category, err := p.runner.Run(gctx, filename)
			p.mu.Lock()
			p.outcomes = append(p.outcomes, Outcome{Filename: filename, Category: category, Err: err})
			p.mu.Unlock()
			return nil
		})
	}
	// g.Wait's error is always nil: worker functions never return an error
	// themselves, so there is nothing to check here.
	_ = g.Wait()

	return summarize(p.outcomes)
}

func summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes), Counts: make(map[lineage.OutcomeCategory]int)}
	for _, o := range outcomes {
		s.Counts[o.Category]++
		if o.Category == lineage.OutcomeUnhandledFailure || o.Category == lineage.OutcomeNoSourceMatched {
			s.Failed = append(s.Failed, o)
		}
	}
	return s
}
