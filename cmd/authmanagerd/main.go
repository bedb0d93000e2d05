/*
 * cmd/authmanagerd/main.go
 *
 * Thin demo binary wiring pkg/clusterauth against a real in-cluster
 * configuration: a health endpoint, a /retry endpoint that restarts the
 * service-account health check, and an endpoint that runs the Manager's
 * full header-validation path. Not a deployable service on its
 * own - it exists to prove the library links and drives real client-go
 * and OAuth calls end to end.
 */

package main

import (
	"fmt"
	"net/http"
	"os"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/cryostat/openshift-auth-manager/internal/logging"
	"github.com/cryostat/openshift-auth-manager/pkg/clusterauth"
)

func namespaceFromProjectedVolume() (string, error) {
	const path = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func clientFactory(restConfig *rest.Config) clusterauth.ClientFactory {
	return func(token string) (kubernetes.Interface, error) {
		cfg := rest.CopyConfig(restConfig)
		cfg.BearerToken = token
		cfg.BearerTokenFile = ""
		return kubernetes.NewForConfig(cfg)
	}
}

func main() {
	logger := logging.KlogLogger{}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load in-cluster config: %v", err), "authmanagerd")
		os.Exit(1)
	}

	saClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to build service account client: %v", err), "authmanagerd")
		os.Exit(1)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to build dynamic client: %v", err), "authmanagerd")
		os.Exit(1)
	}

	resourceMapPath := os.Getenv("CRYOSTAT_RESOURCE_MAP")
	var resources *clusterauth.ResourceMap
	if resourceMapPath != "" {
		resources, err = clusterauth.LoadResourceMapFile(resourceMapPath, logger)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to load resource map %s: %v", resourceMapPath, err), "authmanagerd")
			os.Exit(1)
		}
		if closer, err := clusterauth.WatchResourceMapFile(resourceMapPath, logger, func(updated *clusterauth.ResourceMap) {
			resources = updated
		}); err != nil {
			logger.Warn(fmt.Sprintf("resource map hot-reload disabled: %v", err), "authmanagerd")
		} else {
			defer closer.Close()
		}
	} else {
		resources = clusterauth.NewResourceMap(nil, logger)
	}

	manager := clusterauth.NewManager(clusterauth.Config{
		ServiceAccountClient: saClient,
		DynamicClient:        dynamicClient,
		RestConfig:           restConfig,
		ClientFactory:        clientFactory(restConfig),
		Resources:            resources,
		Namespace:            namespaceFromProjectedVolume,
		Logger:               logger,
	})
	defer manager.Shutdown()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/retry", func(w http.ResponseWriter, r *http.Request) {
		manager.RetryHealthCheck()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/validate", func(w http.ResponseWriter, r *http.Request) {
		actions := map[clusterauth.ResourceAction]struct{}{
			{Type: clusterauth.TargetResource, Verb: clusterauth.VerbRead}: {},
		}
		header := func() string { return r.Header.Get("Authorization") }

		ok, err := manager.ValidateHTTPHeader(r.Context(), header, actions)
		if err != nil {
			redirect, redirectErr := manager.GetLoginRedirectURL(r.Context(), header, actions)
			if redirectErr == nil && redirect != "" {
				http.Redirect(w, r, redirect, http.StatusFound)
				return
			}
			w.Header().Set("WWW-Authenticate", manager.Scheme())
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if !ok {
			w.Header().Set("WWW-Authenticate", manager.Scheme())
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	addr := os.Getenv("CRYOSTAT_AUTH_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logger.Info(fmt.Sprintf("listening on %s", addr), "authmanagerd")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error(fmt.Sprintf("server exited: %v", err), "authmanagerd")
		os.Exit(1)
	}
}
