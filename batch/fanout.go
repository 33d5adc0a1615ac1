package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const maxFanOut = 16

type Failure struct {
	Index uint64
	Key   string
	Err   error
}

// FanOut runs fn for every key, at most maxFanOut at a time. Results keep the order of keys,
// failed keys are skipped in the results and reported as failures.
func FanOut[K any, R any](ctx context.Context, keys []K, fn func(context.Context, K) (R, error), name func(K) string) ([]R, []Failure) {
	type outcome struct {
		res R
		err error
	}
	outcomes := make([]outcome, len(keys))

	// Failures stay in their own slot, so one failed key never cancels the others.
	var g errgroup.Group
	g.SetLimit(maxFanOut)
	for i := range keys {
		i := i
		g.Go(func() error {
			res, err := fn(ctx, keys[i])
			outcomes[i] = outcome{res, err}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]R, 0, len(keys))
	var failures []Failure
	for i, o := range outcomes {
		if o.err != nil {
			failures = append(failures, Failure{Index: uint64(i), Key: name(keys[i]), Err: o.err})
			continue
		}
		results = append(results, o.res)
	}
	return results, failures
}
