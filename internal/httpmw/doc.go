// Package httpmw provides the HTTP middleware for the public listener.
//
// The request-defense stages live here alongside the plumbing middleware
// (request IDs, request logging, panic recovery). httpserver.NewHandler
// composes them, outermost first:
//
//	security headers, recover, request id, client ip, tracing, metrics,
//	request logger, access log, trusted host, CORS, request size,
//	brute-force lockout, global rate limit, contact rate limit,
//	suspicious patterns, router
//
// Every stage either writes a complete response and stops, or calls next.
// Security headers are outermost so every response, including early
// denials and recovered panics, carries them.
//
// Raw client addresses, query strings and user agents are kept out of
// request logs. Security events carry the masked client address instead.
package httpmw
