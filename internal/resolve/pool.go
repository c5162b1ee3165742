package resolve

import (
	"context"
	"sync"

	"arr/internal/cache"
	"arr/internal/probe"
)

// Outcome is one completed probe delivered back to the driver.
type Outcome struct {
	Path   string
	Result *probe.Result
	Err    error
}

// Pool runs metadata probes on a bounded set of workers. The driver
// stays single-threaded: it hands over a batch of distinct paths and
// consumes the completion channel; only cache-internal state is shared
// across workers.
type Pool struct {
	workers int
	cache   *cache.ResolutionCache
	prober  probe.Prober
}

// NewPool creates a pool with the given worker count (minimum one).
func NewPool(workers int, c *cache.ResolutionCache, prober probe.Prober) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers, cache: c, prober: prober}
}

// ProbeBatch probes every path and returns the outcomes keyed by path.
// Duplicates are collapsed. Cancellation drains outstanding work and
// returns the context error; partial results are discarded.
func (p *Pool) ProbeBatch(ctx context.Context, paths []string) (map[string]Outcome, error) {
	distinct := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if !seen[path] {
			seen[path] = true
			distinct = append(distinct, path)
		}
	}
	if len(distinct) == 0 {
		return map[string]Outcome{}, nil
	}

	work := make(chan string, len(distinct))
	done := make(chan Outcome, len(distinct))
	for _, path := range distinct {
		work <- path
	}
	close(work)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range work {
				if ctx.Err() != nil {
					done <- Outcome{Path: path, Err: ctx.Err()}
					continue
				}
				result, err := p.cache.Probe(path, p.prober)
				done <- Outcome{Path: path, Result: result, Err: err}
			}
		}()
	}
	wg.Wait()
	close(done)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	out := make(map[string]Outcome, len(distinct))
	for o := range done {
		out[o.Path] = o
	}
	return out, nil
}
