package orchestrator

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/kbukum/fixturekit/cache"
	"github.com/kbukum/fixturekit/resilience"
)

// coalesce runs fn once for all concurrent callers with the same key. fn must
// not depend on any single caller's cancellation; a waiting caller whose own
// context ends stops waiting and gets ctx.Err(). shared is true for every
// caller of a run that served more than one.
func coalesce[T any](ctx context.Context, g *singleflight.Group, key cache.Key, fn func() (resilience.Outcome[T], error)) (resilience.Outcome[T], bool, error) {
	ch := g.DoChan(key.String(), func() (any, error) {
		out, err := fn()
		return out, err
	})

	select {
	case r := <-ch:
		out, _ := r.Val.(resilience.Outcome[T])
		return out, r.Shared, r.Err
	case <-ctx.Done():
		return resilience.Outcome[T]{Source: resilience.SourceFixture}, false, ctx.Err()
	}
}
