// Package health holds the liveness and readiness probes served on the ops
// listener.
//
// Probes combine with [All] and [Any]. [Ping] turns a dependency's Ping
// method into a probe with its own deadline. [ShutdownGate] fails readiness
// as soon as draining starts so the load balancer stops routing to the
// instance before the public listener is shut down.
package health
