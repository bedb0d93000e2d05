/*
 * pkg/clusterauth/accessreview.go
 *
 * C3: translates a set of abstract ResourceActions into a parallel fan-out
 * of SelfSubjectAccessReview probes against the cluster, reducing the
 * results to a single allow/deny decision bounded by an overall deadline.
 */

package clusterauth

import (
	"context"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"golang.org/x/time/rate"

	"github.com/cryostat/openshift-auth-manager/internal/cachekeys"
	"github.com/cryostat/openshift-auth-manager/internal/parallel"
)

// probe is one SelfSubjectAccessReview to submit.
type probe struct {
	namespace string
	gr        GroupResource
	verb      string
}

// buildProbes expands a ResourceAction set into the concrete probes C4's
// mapping implies. A ResourceType absent from the map, or mapped to the
// empty set, contributes no probes - those actions are treated as ungated
// rather than denied. Two ResourceTypes that map to overlapping
// GroupResources under the same verb collapse to a single probe: the
// cluster's answer to "can I <verb> <groupResource>" doesn't depend on
// which abstract ResourceType asked.
func buildProbes(resources *ResourceMap, namespace string, actions map[ResourceAction]struct{}) ([]probe, error) {
	probes := make([]probe, 0, len(actions))
	seen := make(map[string]struct{}, len(actions))
	for action := range actions {
		verb, err := kubeVerb(action.Verb)
		if err != nil {
			return nil, err
		}
		for gr := range resources.Lookup(action.Type) {
			key := cachekeys.BuildAction(gr.String(), verb)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			probes = append(probes, probe{namespace: namespace, gr: gr, verb: verb})
		}
	}
	return probes, nil
}

// ValidateToken authenticates token and, when resourceActions is non-empty,
// authorizes every action against the cluster. An empty resourceActions set
// collapses to pure authentication via C2.
func (m *Manager) ValidateToken(ctx context.Context, token string, resourceActions map[ResourceAction]struct{}) (bool, error) {
	if token == "" {
		return false, nil
	}

	if len(resourceActions) == 0 {
		return m.ReviewToken(ctx, token)
	}

	authenticated, err := m.ReviewToken(ctx, token)
	if err != nil || !authenticated {
		return false, err
	}

	client, err := m.cache.Get(token)
	if err != nil {
		return false, err
	}

	namespace := m.namespaceOrEmpty(ctx)
	probes, err := buildProbes(m.resources, namespace, resourceActions)
	if err != nil {
		return false, err
	}
	if len(probes) == 0 {
		return true, nil
	}

	if err := m.runAccessReviews(ctx, client.Interface, probes); err != nil {
		m.cache.Invalidate(token)
		return false, err
	}
	return true, nil
}

// runAccessReviews submits every probe concurrently, bounded by
// m.accessReviewDeadline, and returns the first denial or transport error
// encountered. It always waits for every probe to either complete or be
// cancelled by the deadline before returning.
func (m *Manager) runAccessReviews(ctx context.Context, client kubernetes.Interface, probes []probe) error {
	reviewCtx, cancel := context.WithTimeout(ctx, m.accessReviewDeadline)
	defer cancel()

	var limiter *rate.Limiter
	if m.requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.requestsPerSecond), 1)
	}

	const maxConcurrency = 16
	return parallel.ForEach(reviewCtx, probes, maxConcurrency, func(ctx context.Context, p probe) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return &ClusterClientError{Cause: err}
			}
		}
		return submitAccessReview(ctx, client, p)
	})
}

func submitAccessReview(ctx context.Context, client kubernetes.Interface, p probe) error {
	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Namespace:   p.namespace,
				Verb:        p.verb,
				Group:       p.gr.Group,
				Resource:    p.gr.Resource,
				Subresource: p.gr.SubResource,
			},
		},
	}

	response, err := client.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return &ClusterClientError{Cause: err}
	}
	if !response.Status.Allowed {
		reason := response.Status.Reason
		if reason == "" {
			reason = response.Status.EvaluationError
		}
		return &PermissionDeniedError{
			Namespace:     p.namespace,
			GroupResource: p.gr.String(),
			Verb:          p.verb,
			Reason:        reason,
		}
	}
	return nil
}

// ValidateHTTPHeader extracts a bearer token from an HTTP Authorization
// header and validates it against resourceActions.
func (m *Manager) ValidateHTTPHeader(ctx context.Context, header HeaderProvider, resourceActions map[ResourceAction]struct{}) (bool, error) {
	token, ok := ExtractBearer(header())
	if !ok {
		return false, nil
	}
	return m.ValidateToken(ctx, token, resourceActions)
}

// ValidateWebSocketSubProtocol extracts a bearer token from a negotiated
// WebSocket subprotocol and validates it against resourceActions.
func (m *Manager) ValidateWebSocketSubProtocol(ctx context.Context, subprotocol HeaderProvider, resourceActions map[ResourceAction]struct{}) (bool, error) {
	token, ok := ExtractSubprotocol(subprotocol())
	if !ok {
		return false, nil
	}
	return m.ValidateToken(ctx, token, resourceActions)
}
