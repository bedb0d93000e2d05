/*
 * pkg/clusterauth/errors.go
 *
 * The error taxonomy propagated out of the auth subsystem. Callers that need
 * to distinguish kinds use errors.As; none of these are ever raised as a
 * Go panic.
 */

package clusterauth

import (
	"errors"
	"fmt"
)

// ErrNoToken indicates no usable bearer token was presented. It is distinct
// from an authentication failure: no cluster call is made.
var ErrNoToken = errors.New("clusterauth: no token presented")

// AuthorizationError wraps a non-blank TokenReview status error, or any
// failure the cluster attaches to a review beyond a plain allow/deny.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("clusterauth: authorization error: %s", e.Reason)
}

// PermissionDeniedError records a single denied SelfSubjectAccessReview probe.
type PermissionDeniedError struct {
	Namespace     string
	GroupResource string
	Verb          string
	Reason        string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("clusterauth: permission denied: namespace=%s groupResource=%s verb=%s reason=%s",
		e.Namespace, e.GroupResource, e.Verb, e.Reason)
}

// ClusterClientError wraps a transport-level failure talking to the cluster
// API (TokenReview, SelfSubjectAccessReview, or OAuth metadata discovery).
type ClusterClientError struct {
	Cause error
}

func (e *ClusterClientError) Error() string {
	return fmt.Sprintf("clusterauth: cluster client error: %v", e.Cause)
}

func (e *ClusterClientError) Unwrap() error {
	return e.Cause
}

// MissingEnvVarError indicates a required environment variable was not set
// when building the login redirect URL.
type MissingEnvVarError struct {
	Name string
}

func (e *MissingEnvVarError) Error() string {
	return fmt.Sprintf("clusterauth: missing environment variable %s", e.Name)
}

// TokenNotFoundError indicates a logout revocation targeted an
// OAuthAccessToken object the cluster does not have.
type TokenNotFoundError struct {
	Token string
}

func (e *TokenNotFoundError) Error() string {
	return "clusterauth: token not found for revocation"
}

// InvalidArgumentError indicates a caller or configuration error distinct
// from any runtime cluster condition: an unmapped verb, a malformed
// GroupResource string, and similar.
type InvalidArgumentError struct {
	Detail string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("clusterauth: invalid argument: %s", e.Detail)
}
