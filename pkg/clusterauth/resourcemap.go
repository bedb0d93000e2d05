/*
 * pkg/clusterauth/resourcemap.go
 *
 * Loads and owns the static mapping from abstract ResourceType to one or
 * more concrete GroupResource tuples.
 */

package clusterauth

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"sigs.k8s.io/yaml"

	"github.com/cryostat/openshift-auth-manager/internal/config"
	"github.com/cryostat/openshift-auth-manager/internal/logging"
)

// KeyValueSource supplies the raw ResourceType-name -> comma-separated
// GroupResource-string pairs a ResourceMap is built from. A plain
// map[string]string has no methods and does not satisfy it; inside this
// package, stringMapSource adapts one.
type KeyValueSource interface {
	Keys() []string
	Get(key string) (string, bool)
}

// stringMapSource adapts a map[string]string to KeyValueSource.
type stringMapSource map[string]string

func (m stringMapSource) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (m stringMapSource) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

var knownResourceTypes = map[string]ResourceType{
	string(TargetResource):        TargetResource,
	string(RecordingResource):     RecordingResource,
	string(CertificateResource):   CertificateResource,
	string(CredentialsResource):   CredentialsResource,
	string(ProbeTemplateResource): ProbeTemplateResource,
	string(TemplateResource):      TemplateResource,
}

// ResourceMap is an immutable ResourceType -> set<GroupResource> mapping.
// Once constructed it is never mutated; reloading produces a new instance.
type ResourceMap struct {
	entries map[ResourceType]map[GroupResource]struct{}
}

// NewResourceMap builds a frozen ResourceMap from a key/value source.
// Unknown keys and malformed GroupResource strings are logged and dropped;
// construction never fails.
func NewResourceMap(source KeyValueSource, logger logging.Logger) *ResourceMap {
	entries := make(map[ResourceType]map[GroupResource]struct{})
	if source == nil {
		return &ResourceMap{entries: entries}
	}

	for _, key := range source.Keys() {
		resourceType, ok := knownResourceTypes[strings.ToUpper(key)]
		if !ok {
			logWarnf(logger, "resourcemap: unknown resource type key %q, dropping", key)
			continue
		}

		raw, _ := source.Get(key)
		set := make(map[GroupResource]struct{})
		for _, piece := range strings.Split(raw, ",") {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			gr, err := ParseGroupResource(piece)
			if err != nil {
				logWarnf(logger, "resourcemap: malformed group resource %q for %s, dropping", piece, key)
				continue
			}
			set[gr] = struct{}{}
		}
		entries[resourceType] = set
	}

	return &ResourceMap{entries: entries}
}

// Lookup returns the GroupResource set mapped to a ResourceType. Absence of
// the type from the map yields the empty set, which by policy grants the
// action at the fan-out layer rather than denying it.
func (m *ResourceMap) Lookup(t ResourceType) map[GroupResource]struct{} {
	if m == nil {
		return nil
	}
	return m.entries[t]
}

func logWarnf(logger logging.Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Warn(fmt.Sprintf(format, args...), "ResourceMap")
}

// LoadResourceMapFile reads a YAML or JSON document at path and builds a
// ResourceMap from its top-level string-to-string mapping.
func LoadResourceMapFile(path string, logger logging.Logger) (*ResourceMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var decoded map[string]string
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return NewResourceMap(stringMapSource(decoded), logger), nil
}

// WatchResourceMapFile watches path for changes and invokes onChange with a
// freshly built, independently frozen ResourceMap after each debounced
// change. The returned io.Closer stops the watch.
func WatchResourceMapFile(path string, logger logging.Logger, onChange func(*ResourceMap)) (io.Closer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		var debounce *time.Timer
		reload := func() {
			rm, err := LoadResourceMapFile(path, logger)
			if err != nil {
				logWarnf(logger, "resourcemap: reload of %s failed: %v", path, err)
				return
			}
			onChange(rm)
		}

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(config.ResourceMapReloadDebounce, reload)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
