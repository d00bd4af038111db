// Package orchestrator combines the response cache and the budget executor
// into one request path.
//
// A request is first looked up in the cache under its route, canonical query
// and the current scenario. On a miss the fixture operation races the budget;
// when it loses, the passthrough operation serves the request. Only fixture
// results that beat the budget are cached, so a recovered fixture path is
// tried again on the next miss.
//
//	cfg, _ := orchestrator.LoadConfig()
//	orc := orchestrator.New[[]byte](cfg, scenarios, orchestrator.WithLogger(log))
//	defer orc.Destroy()
//
//	resp, err := orc.ExecuteRequest(ctx, loadFixture, callBackend, orchestrator.Descriptor{
//	    Route:  r.URL.Path,
//	    Method: r.Method,
//	    Params: r.URL.RawQuery,
//	})
package orchestrator
