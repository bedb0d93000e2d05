/*
 * pkg/clusterauth/manager.go
 *
 * Manager is the public façade composing C1-C6 into the seven operations a
 * host HTTP/WebSocket layer calls: scheme name, user-info lookup, token and
 * header/subprotocol validation, login redirect URL, and logout.
 */

package clusterauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/jellydator/ttlcache/v3"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/cryostat/openshift-auth-manager/internal/authstate"
	"github.com/cryostat/openshift-auth-manager/internal/config"
	"github.com/cryostat/openshift-auth-manager/internal/future"
	"github.com/cryostat/openshift-auth-manager/internal/logging"
)

// ClientFactory builds an authenticated cluster client scoped to a single
// bearer token, typically by copying the service-account rest.Config and
// overriding its BearerToken.
type ClientFactory func(token string) (kubernetes.Interface, error)

// NamespaceProvider returns the namespace the service itself runs in. Hosts
// typically back this by reading the projected service-account namespace
// file once and caching the result.
type NamespaceProvider func() (string, error)

// EnvLookup mirrors os.LookupEnv, injected so tests can control environment
// variables deterministically.
type EnvLookup func(name string) (string, bool)

// Config bundles the collaborators and tuning knobs a Manager needs. Fields
// left zero fall back to sensible defaults (see NewManager).
type Config struct {
	// ServiceAccountClient performs TokenReview (and the health tracker's
	// connectivity probe) on behalf of the host service account.
	// SelfSubjectAccessReview calls run on per-token ClientFactory clients.
	ServiceAccountClient kubernetes.Interface
	// DynamicClient deletes the OAuthAccessToken object during logout
	// revocation. OAuthAccessToken is an OpenShift API type with no typed
	// client in this module's dependency set, so it is addressed generically.
	DynamicClient dynamic.Interface
	// RestConfig is the service account's REST configuration; its Host field
	// is used as the cluster master URL for OAuth discovery.
	RestConfig *rest.Config
	// ClientFactory builds a per-token cluster client on cache miss.
	ClientFactory ClientFactory
	// Resources is the frozen ResourceType -> GroupResource mapping (C4).
	Resources *ResourceMap
	// Namespace resolves the namespace the service runs in.
	Namespace NamespaceProvider
	// Env resolves environment variables used while building the login URL.
	Env EnvLookup
	// Logger receives structured log lines. Defaults to logging.NoopLogger.
	Logger logging.Logger
	// HTTPClient performs the OAuth metadata discovery GET. Defaults to a
	// client whose transport is an in-memory httpcache transport.
	HTTPClient *http.Client
	// AccessReviewDeadline bounds an entire C3 fan-out. Defaults to
	// config.AccessReviewDeadline (15s).
	AccessReviewDeadline time.Duration
	// RequestsPerSecond optionally rate-limits the SelfSubjectAccessReview
	// fan-out. Zero means unlimited.
	RequestsPerSecond float64
	// ClientCacheIdleExpiry controls C6's idle eviction window. Defaults to
	// config.ClientCacheIdleExpiry (5m).
	ClientCacheIdleExpiry time.Duration
	// ClientCacheOptions are passed through to NewClientCache unchanged,
	// letting a host tune eviction behavior (e.g. ttlcache.WithDisableTouchOnHit)
	// without this package knowing about ttlcache's full option surface.
	ClientCacheOptions []ttlcache.Option[string, *ClusterClient]
	// ClientCacheScheduler launches the client cache's janitor loop. Defaults
	// to running it on a new goroutine; a host that wants that loop under its
	// own worker pool supplies its own Scheduler instead.
	ClientCacheScheduler Scheduler
}

// Manager is the auth subsystem's public façade.
type Manager struct {
	saClient   kubernetes.Interface
	restConfig *rest.Config
	factory       ClientFactory
	dynamicClient dynamic.Interface
	resources     *ResourceMap
	namespace     NamespaceProvider
	env           EnvLookup
	logger        logging.Logger
	httpClient    *http.Client

	accessReviewDeadline time.Duration
	requestsPerSecond    float64

	cache  *ClientCache
	health *authstate.Manager

	authEndpointFuture future.Future[string]
	logoutURLFuture    future.Future[string]
	metadataFuture     future.Future[OAuthMetadata]
}

// NewManager wires C1-C6 together behind the Manager façade.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	var httpClient *http.Client
	if cfg.HTTPClient == nil {
		// OAuth metadata discovery is memoized in-process for the life of
		// the Manager; the HTTP-level cache also honours the discovery
		// document's cache headers for this client. It is held in memory
		// only, so nothing it stores survives a process restart.
		httpClient = &http.Client{Transport: httpcache.NewMemoryCacheTransport()}
	} else {
		// Copy rather than mutate the host's client: its Transport is about
		// to be wrapped below, and the host may still use the original
		// *http.Client elsewhere unwrapped.
		clone := *cfg.HTTPClient
		httpClient = &clone
	}
	deadline := cfg.AccessReviewDeadline
	if deadline <= 0 {
		deadline = config.AccessReviewDeadline
	}
	idleExpiry := cfg.ClientCacheIdleExpiry
	if idleExpiry <= 0 {
		idleExpiry = config.ClientCacheIdleExpiry
	}
	env := cfg.Env
	if env == nil {
		env = defaultEnvLookup
	}

	health := authstate.New(authstate.Config{
		MaxAttempts:     config.AuthStateMaxAttempts,
		BackoffSchedule: config.AuthStateBackoffSchedule,
		RecoveryTest:    serviceAccountConnectivityProbe(cfg.ServiceAccountClient),
	})
	// The OAuth discovery/logout HTTP client shares the same health tracker
	// the TokenReview calls report to: a TokenReview failure or a 401 on
	// this client moves the tracker out of StateValid, which then blocks
	// requests on this client. TokenReview calls themselves are not gated.
	httpClient.Transport = health.WrapTransport(httpClient.Transport)

	m := &Manager{
		saClient:             cfg.ServiceAccountClient,
		dynamicClient:        cfg.DynamicClient,
		restConfig:           cfg.RestConfig,
		factory:              cfg.ClientFactory,
		resources:            cfg.Resources,
		namespace:            cfg.Namespace,
		env:                  env,
		logger:               logger,
		httpClient:           httpClient,
		accessReviewDeadline: deadline,
		requestsPerSecond:    cfg.RequestsPerSecond,
		health:               health,
	}
	scheduler := cfg.ClientCacheScheduler
	if scheduler == nil {
		scheduler = defaultScheduler
	}
	m.cache = NewClientCache(idleExpiry, cfg.ClientFactory, logger, cfg.ClientCacheOptions...)
	scheduler(m.cache.Start)
	return m
}

// serviceAccountConnectivityProbe returns a RecoveryTest that checks the
// service account's cluster connectivity independent of any single caller's
// TokenReview/SelfSubjectAccessReview permissions, using the discovery
// endpoint every authenticated client can reach. A nil client (tests that
// never configure one) yields a nil probe, matching authstate's documented
// "nothing to check" default.
func serviceAccountConnectivityProbe(saClient kubernetes.Interface) func() error {
	if saClient == nil {
		return nil
	}
	return func() error {
		_, err := saClient.Discovery().ServerVersion()
		return err
	}
}

// Scheme names the authentication scheme this manager validates, as would
// appear in a WWW-Authenticate response header.
func (m *Manager) Scheme() string {
	return "Bearer"
}

// RetryHealthCheck manually restarts recovery for the service account's
// cluster connection if it is currently in a failed state. A host can wire
// this to an operator-triggered endpoint; a failure reported while the
// tracker is already in its failed state does not restart recovery. A
// no-op outside a failed state.
func (m *Manager) RetryHealthCheck() {
	m.health.TriggerRetry()
}

// Shutdown releases background resources: the client cache's janitor and
// the service-account health tracker's recovery goroutine.
func (m *Manager) Shutdown() {
	m.cache.Close()
	m.health.Shutdown()
}

// UserInfo is the subset of TokenReview status this package exposes to
// callers that need the authenticated identity, not just a pass/fail.
type UserInfo struct {
	Username string
}

// HeaderProvider lazily yields a raw header or subprotocol value. The
// Manager methods that accept one invoke it exactly once per call, even
// when resourceActions is empty.
type HeaderProvider func() string

func (m *Manager) namespaceOrEmpty(ctx context.Context) string {
	if m.namespace == nil {
		return ""
	}
	ns, err := m.namespace()
	if err != nil {
		m.logger.Warn(fmt.Sprintf("failed to resolve service namespace: %v", err), "Manager")
		return ""
	}
	return ns
}
