// Package server implements the HTTP surface of the deploy webhook receiver.
//
// Every route under the configured prefix passes the auth gate first:
//   - disabled deploys answer 404, indistinguishable from an unknown route
//   - IP allowlist and credential failures answer 403
//   - sliding-window rate limiting answers 429
//
// The prefix root runs the full pipeline; the other routes run a single step
// and health reports the environment. Responses share one JSON envelope of
// success, message, data and errors.
package server
