// Package secevent emits structured security telemetry for the request
// defense pipeline.
//
// Every guard reports what it did through an [Emitter]. The emitter masks the
// client identifier, truncates the user agent, drops sensitive detail keys and
// hands exactly one [Record] per call to a [Sink]. Emit never panics and never
// returns an error: telemetry failures must not change a request's outcome.
//
// [LogSink] writes records through the application Logger. [AsyncSink] moves
// the write off the request goroutine and drops records when its buffer is
// full instead of blocking.
package secevent
