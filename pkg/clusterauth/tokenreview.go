/*
 * pkg/clusterauth/tokenreview.go
 *
 * C2: submits a TokenReview to the cluster through the service-account
 * client and interprets its status.
 */

package clusterauth

import (
	"context"

	authenticationv1 "k8s.io/api/authentication/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/cryostat/openshift-auth-manager/internal/config"
	"github.com/cryostat/openshift-auth-manager/internal/telemetry"
)

// reviewTokenStatus submits a TokenReview for token and returns its status.
// It always emits exactly one AuthRequest telemetry event, success or
// failure, bracketing the cluster call.
func (m *Manager) reviewTokenStatus(ctx context.Context) func(token string) (*authenticationv1.TokenReviewStatus, error) {
	return func(token string) (*authenticationv1.TokenReviewStatus, error) {
		requestID := telemetry.NewRequestID()

		reviewCtx, cancel := context.WithTimeout(ctx, config.TokenReviewTimeout)
		defer cancel()

		review := &authenticationv1.TokenReview{
			Spec: authenticationv1.TokenReviewSpec{Token: token},
		}
		result, err := m.saClient.AuthenticationV1().TokenReviews().Create(reviewCtx, review, metav1.CreateOptions{})
		if err != nil {
			telemetry.Emit(m.logger, telemetry.AuthRequest{ID: requestID, Successful: false, Reason: err.Error()})
			m.health.ReportFailure(err.Error())
			return nil, &ClusterClientError{Cause: err}
		}

		telemetry.Emit(m.logger, telemetry.AuthRequest{ID: requestID, Successful: true})
		m.health.ReportSuccess()
		return &result.Status, nil
	}
}

// ReviewToken submits a TokenReview and returns whether the token
// authenticates cleanly: status.Authenticated is true and status.Error is
// blank. A non-blank status.Error is an authorization error even if
// Authenticated happens to be true.
func (m *Manager) ReviewToken(ctx context.Context, token string) (bool, error) {
	status, err := m.reviewTokenStatus(ctx)(token)
	if err != nil {
		return false, err
	}
	if status.Error != "" {
		return false, &AuthorizationError{Reason: status.Error}
	}
	return status.Authenticated, nil
}

// GetUserInfo reviews header's bearer token and returns the cluster's view
// of the authenticated identity. header is invoked lazily so callers that
// have no actions to gate still pay for exactly one cluster round trip.
func (m *Manager) GetUserInfo(ctx context.Context, header HeaderProvider) (UserInfo, error) {
	token, ok := ExtractBearer(header())
	if !ok {
		return UserInfo{}, ErrNoToken
	}

	status, err := m.reviewTokenStatus(ctx)(token)
	if err != nil {
		return UserInfo{}, err
	}
	if status.Error != "" {
		return UserInfo{}, &AuthorizationError{Reason: status.Error}
	}
	if !status.Authenticated {
		return UserInfo{}, &AuthorizationError{Reason: "token did not authenticate"}
	}
	return UserInfo{Username: status.User.Username}, nil
}
