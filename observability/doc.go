// Package observability wires fixturekit to OpenTelemetry.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("fixturekit"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	ins, err := observability.NewInstruments(observability.Meter(observability.InstrumentationName))
//	ins.RecordOutcome(ctx, "fixture", false, latency)
package observability
