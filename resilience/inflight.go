package resilience

import (
	"errors"
)

// ErrInflightFull is the cause recorded when a fixture call is refused because
// the in-flight limit is reached. The call is then handled as a timeout.
var ErrInflightFull = errors.New("fixture in-flight limit reached")

// inflightLimiter caps the number of fixture operations running at once,
// including operations abandoned after losing the race. A nil limiter admits
// everything.
type inflightLimiter struct {
	max int
	sem chan struct{}
}

func newInflightLimiter(max int) *inflightLimiter {
	if max <= 0 {
		return nil
	}
	return &inflightLimiter{
		max: max,
		sem: make(chan struct{}, max),
	}
}

// tryAcquire takes a slot without waiting. The returned release must be
// called exactly once when the fixture operation returns.
func (l *inflightLimiter) tryAcquire() (release func(), ok bool) {
	if l == nil {
		return func() {}, true
	}
	select {
	case l.sem <- struct{}{}:
		return l.release, true
	default:
		return nil, false
	}
}

func (l *inflightLimiter) release() {
	<-l.sem
}

// Available returns the number of free slots, or -1 when unlimited.
func (l *inflightLimiter) Available() int {
	if l == nil {
		return -1
	}
	return l.max - len(l.sem)
}
