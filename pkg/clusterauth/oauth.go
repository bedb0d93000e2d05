/*
 * pkg/clusterauth/oauth.go
 *
 * C5: lazily discovers the cluster's OAuth server metadata and memoizes the
 * login redirect and logout URLs derived from it.
 */

package clusterauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/oauth2"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/cryostat/openshift-auth-manager/internal/config"
)

// OAuthMetadata is the subset of the cluster's
// .well-known/oauth-authorization-server document this package retains.
// Unknown JSON properties are ignored.
type OAuthMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
}

const (
	envOAuthClientID = "CRYOSTAT_OAUTH_CLIENT_ID"
	envOAuthRole     = "CRYOSTAT_OAUTH_ROLE"
)

func defaultEnvLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// oauthAccessTokenResource addresses OpenShift's cluster-scoped
// OAuthAccessToken objects generically via the dynamic client, since this
// module carries no typed OpenShift API client.
var oauthAccessTokenResource = schema.GroupVersionResource{
	Group:    "oauth.openshift.io",
	Version:  "v1",
	Resource: "oauthaccesstokens",
}

// metadata returns the cluster's OAuth server metadata, fetching and
// memoizing it on first call. A fetch or parse failure is memoized too -
// it is not retried under the same Manager instance.
func (m *Manager) metadata(ctx context.Context) (OAuthMetadata, error) {
	return m.metadataFuture.Get(func() (OAuthMetadata, error) {
		return m.discoverMetadata(ctx)
	})
}

func (m *Manager) discoverMetadata(ctx context.Context) (OAuthMetadata, error) {
	if m.restConfig == nil {
		return OAuthMetadata{}, &ClusterClientError{Cause: fmt.Errorf("no rest config configured for OAuth discovery")}
	}

	discoveryCtx, cancel := context.WithTimeout(ctx, config.OAuthDiscoveryTimeout)
	defer cancel()

	endpoint := strings.TrimRight(m.restConfig.Host, "/") + "/.well-known/oauth-authorization-server"
	req, err := http.NewRequestWithContext(discoveryCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return OAuthMetadata{}, &ClusterClientError{Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return OAuthMetadata{}, &ClusterClientError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OAuthMetadata{}, &ClusterClientError{Cause: fmt.Errorf("oauth discovery returned status %d", resp.StatusCode)}
	}

	limited := io.LimitReader(resp.Body, config.OAuthDiscoveryMaxResponseBytes)
	var meta OAuthMetadata
	if err := json.NewDecoder(limited).Decode(&meta); err != nil {
		return OAuthMetadata{}, &ClusterClientError{Cause: err}
	}
	return meta, nil
}

// authorizationURL builds and memoizes the login redirect URL.
func (m *Manager) authorizationURL(ctx context.Context) (string, error) {
	return m.authEndpointFuture.Get(func() (string, error) {
		meta, err := m.metadata(ctx)
		if err != nil {
			return "", err
		}

		clientID, ok := m.env(envOAuthClientID)
		if !ok || clientID == "" {
			return "", &MissingEnvVarError{Name: envOAuthClientID}
		}
		role, ok := m.env(envOAuthRole)
		if !ok || role == "" {
			return "", &MissingEnvVarError{Name: envOAuthRole}
		}

		namespace := m.namespaceOrEmpty(ctx)
		oauthConfig := &oauth2.Config{
			ClientID: fmt.Sprintf("system:serviceaccount:%s:%s", namespace, clientID),
			Endpoint: oauth2.Endpoint{AuthURL: meta.AuthorizationEndpoint},
			Scopes:   []string{fmt.Sprintf("user:check-access role:%s:%s", role, namespace)},
		}

		// oauth2.Config.AuthCodeURL defaults to the authorization-code grant
		// (response_type=code); this service needs the implicit grant
		// instead, hence the explicit overrides.
		authURL := oauthConfig.AuthCodeURL("",
			oauth2.SetAuthURLParam("response_type", "token"),
			oauth2.SetAuthURLParam("response_mode", "fragment"),
		)
		return authURL, nil
	})
}

// logoutURL builds and memoizes the logout URL.
func (m *Manager) logoutURL(ctx context.Context) (string, error) {
	return m.logoutURLFuture.Get(func() (string, error) {
		meta, err := m.metadata(ctx)
		if err != nil {
			return "", err
		}
		return meta.Issuer + "/logout", nil
	})
}

// authFailureRedirectable reports whether err is one of the kinds
// GetLoginRedirectURL treats as "send the user to log in" rather than
// propagating.
func authFailureRedirectable(err error) bool {
	switch err.(type) {
	case *PermissionDeniedError, *AuthorizationError, *ClusterClientError:
		return true
	default:
		return false
	}
}

// GetLoginRedirectURL returns the URL a client should be redirected to for
// interactive login, or "" if header already validates for resourceActions
// and no redirect is needed. Failures other than permission-denied,
// authorization-error, and cluster-client-error propagate to the caller.
func (m *Manager) GetLoginRedirectURL(ctx context.Context, header HeaderProvider, resourceActions map[ResourceAction]struct{}) (string, error) {
	ok, err := m.ValidateHTTPHeader(ctx, header, resourceActions)
	if err == nil && ok {
		return "", nil
	}
	if err != nil && !authFailureRedirectable(err) {
		return "", err
	}
	if err != nil {
		m.logger.Warn(fmt.Sprintf("validation failed before redirect: %v", err), "Manager")
	}
	return m.authorizationURL(ctx)
}

// Logout revokes header's bearer token's OAuthAccessToken object and
// returns the cluster's logout URL.
func (m *Manager) Logout(ctx context.Context, header HeaderProvider) (string, error) {
	token, ok := ExtractBearer(header())
	if ok {
		if err := m.revokeToken(ctx, token); err != nil {
			return "", err
		}
	}
	return m.logoutURL(ctx)
}

// revokeToken deletes the cluster's OAuthAccessToken object corresponding
// to token.
func (m *Manager) revokeToken(ctx context.Context, token string) error {
	if m.dynamicClient == nil {
		return &ClusterClientError{Cause: fmt.Errorf("no dynamic client configured for token revocation")}
	}

	name := oauthAccessTokenName(token)
	err := m.dynamicClient.Resource(oauthAccessTokenResource).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return &TokenNotFoundError{Token: token}
		}
		return &ClusterClientError{Cause: err}
	}
	return nil
}

// oauthAccessTokenName derives the cluster's OAuthAccessToken object name
// from a raw bearer token: strip any "sha256~" prefix, SHA-256 the
// remainder, base64url-encode the digest without padding, and re-prepend
// the prefix.
func oauthAccessTokenName(token string) string {
	const prefix = "sha256~"
	trimmed := strings.TrimPrefix(token, prefix)
	sum := sha256.Sum256([]byte(trimmed))
	encoded := base64.RawURLEncoding.EncodeToString(sum[:])
	return prefix + encoded
}
