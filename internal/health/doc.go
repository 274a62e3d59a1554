// Package health provides composable liveness and readiness probes and the
// HTTP handlers that expose them.
//
// [ShutdownGate] fails readiness as soon as a drain starts so the load
// balancer stops routing new requests before the listeners close.
package health
