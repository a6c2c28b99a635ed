// Package health provides composable health check probes and the HTTP
// handlers that expose them.
//
// Probes combine with [All] (AND), [Any] (OR) and [Fixed] (static).
// [CheckFunc] adapts a plain function into a [Probe].
//
// Readiness for the bundler is the AND of the [ShutdownGate] and an active
// content snapshot. Once the gate is set the readiness probe fails, so the
// load balancer drains the instance before the listeners stop.
package health
