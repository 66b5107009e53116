// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization service.
//
// Instrumentation is optional and disabled by default: with Enabled set to
// false, no-op providers are installed and all recording calls are free. When
// enabled, callers can plug in their own exporters via the returned providers.
//
// Never record credential values (tokens, codes, client secrets) in spans or
// metrics. Only metadata such as client IDs, grant types, and outcomes is
// safe; traces outlive requests and reach wider audiences than the service
// itself.
package instrumentation
