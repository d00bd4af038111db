// Package resilience bounds the time spent waiting for the fixture path.
//
// A BudgetExecutor races a fixture operation against a timer:
//   - BudgetExecutor: per-executor budget, passthrough switch and counters
//   - ExecuteWithBudget: one fixture/passthrough pair
//   - ExecuteMultipleWithBudget: many pairs, settled together, in input order
//
// Only running out of budget triggers the passthrough. Any other fixture
// failure is returned to the caller untouched.
//
//	exec := resilience.NewBudgetExecutor(resilience.DefaultBudgetConfig("fixtures"), log)
//
//	out, err := resilience.ExecuteWithBudget(ctx, exec,
//	    func(ctx context.Context) (Payload, error) { return fixtures.Load(ctx, route) },
//	    func(ctx context.Context) (Payload, error) { return backend.Fetch(ctx, route) },
//	    resilience.Descriptor{Route: route},
//	)
//	if out.TimedOut {
//	    // served by the passthrough
//	}
package resilience
