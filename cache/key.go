package cache

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/kbukum/fixturekit/scenario"
)

// Key is the composite identity of a cacheable request. Two requests share a
// cache entry iff all four fields are equal, so a scenario switch partitions
// the cache without a flush.
type Key struct {
	Route        string
	Params       string
	ScenarioName string
	ScenarioSeed int64
}

// NewKey canonicalizes route and params and binds them to sc. When params is
// empty and route carries a query string, the query string is used instead.
func NewKey(route, params string, sc scenario.Scenario) Key {
	path, query, hasQuery := strings.Cut(route, "?")
	if params == "" && hasQuery {
		params = query
	}
	return Key{
		Route:        NormalizeRoute(path),
		Params:       CanonicalParams(params),
		ScenarioName: sc.Name,
		ScenarioSeed: sc.Seed,
	}
}

// String renders the key unambiguously; it is stable for equal keys.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(k.Route))
	b.WriteByte(' ')
	b.WriteString(strconv.Quote(k.Params))
	b.WriteByte(' ')
	b.WriteString(strconv.Quote(k.ScenarioName))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(k.ScenarioSeed, 10))
	return b.String()
}

// NormalizeRoute strips any query string, lower-cases the path and collapses
// repeated slashes.
func NormalizeRoute(route string) string {
	path, _, _ := strings.Cut(route, "?")
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return "/"
	}

	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// CanonicalParams parses a query string and re-encodes it with keys sorted,
// so ?b=2&a=1 and ?a=1&b=2 collide. Values of a repeated key keep their
// order. Text that does not parse is returned verbatim.
func CanonicalParams(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "?")
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	return values.Encode()
}
