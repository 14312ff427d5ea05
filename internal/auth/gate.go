// Package auth decides whether an inbound deploy request may proceed.
package auth

import (
	"net"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Reason identifies which check denied a request. It is for server-side
// logging only and never sent to the caller.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDisabled       Reason = "disabled"
	ReasonIPNotAllowed   Reason = "ip_not_allowed"
	ReasonRateLimited    Reason = "rate_limited"
	ReasonRateLimitError Reason = "rate_limit_store_error"
	ReasonBadCredentials Reason = "invalid_credentials"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Status  int
	Reason  Reason
	// Err is set when the rate-limit store failed.
	Err error
}

// RateLimitOptions configures the sliding window.
type RateLimitOptions struct {
	Enabled      bool
	MaxAttempts  int
	DecaySeconds int
}

// Options is the gate's view of the configuration.
type Options struct {
	Enabled       bool
	Token         string
	WebhookSecret string
	AllowedIPs    []string
	RateLimit     RateLimitOptions
}

// Gate runs the ordered checks for every deploy request: feature flag,
// IP allowlist, rate limit, then credentials.
type Gate struct {
	opts  Options
	store Store
	now   func() time.Time
}

// NewGate creates a gate. store may be nil when rate limiting is disabled.
func NewGate(opts Options, store Store) *Gate {
	opts.AllowedIPs = ParseAllowedIPs(strings.Join(opts.AllowedIPs, ","))
	opts.RateLimit.MaxAttempts = max(1, opts.RateLimit.MaxAttempts)
	opts.RateLimit.DecaySeconds = max(1, opts.RateLimit.DecaySeconds)
	if store == nil {
		store = NewMemoryStore()
	}
	return &Gate{opts: opts, store: store, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Enabled reports whether the deploy routes are switched on.
func (g *Gate) Enabled() bool {
	return g.opts.Enabled
}

// Authorize checks r. body must be the exact raw request body.
func (g *Gate) Authorize(r *http.Request, body []byte) Decision {
	if !g.opts.Enabled {
		return deny(http.StatusNotFound, ReasonDisabled, nil)
	}

	ip := ClientIP(r)

	if !g.ipAllowed(ip) {
		return deny(http.StatusForbidden, ReasonIPNotAllowed, nil)
	}

	if g.opts.RateLimit.Enabled {
		allowed, err := g.store.Attempt(r.Context(), RateLimitKeyPrefix+ip, g.now(),
			time.Duration(g.opts.RateLimit.DecaySeconds)*time.Second, g.opts.RateLimit.MaxAttempts)
		if err != nil {
			return deny(http.StatusTooManyRequests, ReasonRateLimitError, err)
		}
		if !allowed {
			return deny(http.StatusTooManyRequests, ReasonRateLimited, nil)
		}
	}

	if g.webhookValid(r, body) || g.tokenValid(r) {
		return Decision{Allowed: true, Status: http.StatusOK}
	}

	return deny(http.StatusForbidden, ReasonBadCredentials, nil)
}

func deny(status int, reason Reason, err error) Decision {
	return Decision{Status: status, Reason: reason, Err: err}
}

func (g *Gate) ipAllowed(ip string) bool {
	if len(g.opts.AllowedIPs) == 0 {
		return true
	}
	return slices.Contains(g.opts.AllowedIPs, ip)
}

// webhookValid accepts a GitHub HMAC signature when one is present, and
// otherwise a GitLab token compared directly with the secret.
func (g *Gate) webhookValid(r *http.Request, body []byte) bool {
	secret := g.opts.WebhookSecret
	if secret == "" {
		return false
	}

	if sig := r.Header.Get(HeaderGitHubSignature); strings.HasPrefix(sig, SignaturePrefix) {
		return VerifySignature(body, sig, secret)
	}

	if token := r.Header.Get(HeaderGitLabToken); token != "" {
		return SecureCompare(secret, token)
	}

	return false
}

func (g *Gate) tokenValid(r *http.Request) bool {
	provided := r.Header.Get(HeaderDeployToken)
	if provided == "" {
		provided = r.URL.Query().Get(QueryToken)
	}
	return SecureCompare(g.opts.Token, provided)
}

// ClientIP returns the host part of r.RemoteAddr, or RemoteAddr itself when
// it carries no port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ParseAllowedIPs splits a comma-separated allowlist, trimming entries and
// dropping empty ones.
func ParseAllowedIPs(list string) []string {
	var ips []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ips = append(ips, part)
		}
	}
	return ips
}
