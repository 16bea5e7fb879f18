// Package instrumentation provides OpenTelemetry metrics and tracing for
// the gatehouse library.
//
// By default both providers are no-ops, so instrumenting code paths costs
// nothing until a real MeterProvider or TracerProvider is supplied via
// Config. The Metrics holder exposes pre-created instruments for the HTTP
// layer, the authorization flow, security events, and storage gauges.
//
// Example usage:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//	    ServiceName:    "gatehouse",
//	    ServiceVersion: "1.0.0",
//	    Enabled:        true,
//	    MeterProvider:  sdkMeterProvider, // optional, e.g. backed by OTLP
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Shutdown(ctx)
package instrumentation
