/*
 * internal/config/config.go
 *
 * Configuration and timing settings used across the cluster auth subsystem.
 */

package config

import "time"

// Timing knobs used across the cluster auth subsystem.
const (
	// AccessReviewDeadline bounds an entire access-review fan-out, regardless
	// of how many SelfSubjectAccessReview probes it issues.
	AccessReviewDeadline = 15 * time.Second

	// AccessReviewPerRequestTimeout is not referenced by any call site: a
	// single SelfSubjectAccessReview call is bounded only by
	// AccessReviewDeadline.
	AccessReviewPerRequestTimeout = 5 * time.Second

	// TokenReviewTimeout bounds a single TokenReview call.
	TokenReviewTimeout = 10 * time.Second

	// ClientCacheIdleExpiry controls how long an unused per-token client is
	// retained before its entry is evicted and its resources released.
	ClientCacheIdleExpiry = 5 * time.Minute

	// OAuthDiscoveryTimeout bounds the .well-known/oauth-authorization-server
	// metadata fetch.
	OAuthDiscoveryTimeout = 10 * time.Second

	// OAuthDiscoveryMaxResponseBytes caps the metadata document size read from
	// the discovery endpoint, guarding against a misbehaving or malicious server.
	OAuthDiscoveryMaxResponseBytes = 1 << 20 // 1 MiB

	// AuthStateMaxAttempts is the number of automatic recovery attempts before
	// the service-account client health tracker gives up and reports invalid.
	AuthStateMaxAttempts = 4

	// ResourceMapReloadDebounce coalesces bursts of filesystem events when
	// watching a resource map file for changes.
	ResourceMapReloadDebounce = 500 * time.Millisecond
)

// AuthStateBackoffSchedule defines the delays between automatic recovery
// attempts for the service-account client health tracker. The first attempt
// happens immediately, then waits increase.
var AuthStateBackoffSchedule = []time.Duration{0, 5 * time.Second, 10 * time.Second, 15 * time.Second}
