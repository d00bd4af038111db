package resilience

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pair is one entry of a batch: a fixture operation, its optional fallback
// and the budget it runs under.
type Pair[T any] struct {
	Primary  Operation[T]
	Fallback Operation[T]
	// Budget overrides the executor budget when positive.
	Budget     time.Duration
	Descriptor Descriptor
}

// BatchResult is the settled state of one Pair. When Err is set, Outcome
// holds only the provenance marker.
type BatchResult[T any] struct {
	Outcome Outcome[T]
	Err     error
}

// ExecuteMultipleWithBudget runs every pair concurrently and waits for all of
// them. A failing pair does not affect the others. Results are in input order.
func ExecuteMultipleWithBudget[T any](ctx context.Context, e *BudgetExecutor, pairs []Pair[T]) []BatchResult[T] {
	results := make([]BatchResult[T], len(pairs))

	// Every goroutine returns nil so that one failing pair never cancels or
	// hides the others; errors travel in the results.
	var g errgroup.Group
	for i, p := range pairs {
		g.Go(func() error {
			d := p.Descriptor
			if p.Budget > 0 {
				d.Budget = p.Budget
			}
			outcome, err := ExecuteWithBudget(ctx, e, p.Primary, p.Fallback, d)
			if err != nil {
				results[i] = BatchResult[T]{
					Outcome: Outcome[T]{Source: SourceFixture, TimedOut: IsTimeout(err), Elapsed: outcome.Elapsed},
					Err:     err,
				}
				return nil
			}
			results[i] = BatchResult[T]{Outcome: outcome}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
