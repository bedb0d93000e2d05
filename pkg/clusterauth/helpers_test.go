package clusterauth

import (
	"encoding/base64"
	"testing"

	"github.com/cryostat/openshift-auth-manager/internal/logging"
)

// rawBearer base64url-encodes token the way a real client would before
// placing it in an Authorization header or WebSocket subprotocol.
func rawBearer(t *testing.T, token string) string {
	t.Helper()
	return base64.RawURLEncoding.EncodeToString([]byte(token))
}

// captureLogger records every call so assertions can inspect what was logged,
// without coupling tests to log message wording beyond what they assert on.
type captureLogger struct {
	debugs []string
	warns  []string
	errors []string
}

func (l *captureLogger) Debug(message string, _ ...string) { l.debugs = append(l.debugs, message) }
func (l *captureLogger) Info(string, ...string)            {}
func (l *captureLogger) Warn(message string, _ ...string)  { l.warns = append(l.warns, message) }
func (l *captureLogger) Error(message string, _ ...string) { l.errors = append(l.errors, message) }

var _ logging.Logger = (*captureLogger)(nil)
