/*
 * internal/authstate/transport.go
 *
 * AuthAwareTransport wraps the OAuth discovery/logout HTTP client so that
 * a known-bad service account connection stops issuing requests instead of
 * repeatedly failing against a cluster it already knows is unreachable, and
 * so that HTTP-level outcomes feed back into the same State Manager the
 * TokenReview call site reports to.
 */

package authstate

import (
	"net/http"
)

// AuthAwareTransport is an http.RoundTripper that consults a Manager before
// every request and reports the outcome of every request that runs.
type AuthAwareTransport struct {
	base    http.RoundTripper
	manager *Manager
}

// WrapTransport wraps base with state checks and outcome reporting. A nil
// base uses http.DefaultTransport.
//
//   - StateInvalid or StateRecovering: the request is never sent; RoundTrip
//     returns an *AuthInvalidError immediately.
//   - StateValid: the request runs. A 401 response reports a failure and
//     RoundTrip returns an *AuthInvalidError carrying the state that failure
//     left behind; any 2xx/3xx response reports a success.
func (m *Manager) WrapTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthAwareTransport{base: base, manager: m}
}

func (t *AuthAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Blocked during Recovering too, not just Invalid: recovery runs its own
	// probe on its own schedule, and letting ordinary requests through in
	// the meantime would just spam a connection already known bad.
	state, reason := t.manager.State()
	if state == StateInvalid || state == StateRecovering {
		return nil, &AuthInvalidError{Reason: reason, State: state}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		// Transport-level errors (DNS, dial, timeout) are not reported as
		// auth failures - they say nothing about whether the credential
		// itself is still good.
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		t.manager.ReportFailure("401 Unauthorized")
		resp.Body.Close()
		state, _ := t.manager.State()
		return nil, &AuthInvalidError{Reason: "401 Unauthorized", State: state}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		t.manager.ReportSuccess()
	}

	return resp, nil
}
