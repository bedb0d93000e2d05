/*
 * internal/logging/logger.go
 *
 * Logger interface shared by the cluster auth subsystem, plus a klog-backed
 * default implementation.
 */

package logging

import "k8s.io/klog/v2"

// Logger captures the logging operations needed by the cluster auth subsystem.
type Logger interface {
	Debug(message string, source ...string)
	Info(message string, source ...string)
	Warn(message string, source ...string)
	Error(message string, source ...string)
}

// KlogLogger adapts klog/v2 to the Logger interface. It is the default used
// when a host does not supply its own Logger.
type KlogLogger struct{}

// Debug logs at klog verbosity level 2, tagged with an optional source.
func (KlogLogger) Debug(message string, source ...string) {
	klog.V(2).Info(tag(message, source))
}

// Info logs at the default klog level.
func (KlogLogger) Info(message string, source ...string) {
	klog.Info(tag(message, source))
}

// Warn logs via klog.Warning.
func (KlogLogger) Warn(message string, source ...string) {
	klog.Warning(tag(message, source))
}

// Error logs via klog.Error.
func (KlogLogger) Error(message string, source ...string) {
	klog.Error(tag(message, source))
}

func tag(message string, source []string) string {
	if len(source) == 0 {
		return message
	}
	tagged := "[" + source[0] + "] " + message
	for _, s := range source[1:] {
		tagged += " [" + s + "]"
	}
	return tagged
}

// NoopLogger discards everything. Useful for tests and for callers that have
// not wired a real Logger yet.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...string) {}
func (NoopLogger) Info(string, ...string)  {}
func (NoopLogger) Warn(string, ...string)  {}
func (NoopLogger) Error(string, ...string) {}
