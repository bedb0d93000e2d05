/*
 * internal/telemetry/events.go
 *
 * Structured event emission for authentication requests. Go has no JFR;
 * the analogue used here is a correlation-tagged log line, always emitted
 * whether the request succeeded or failed.
 */

package telemetry

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cryostat/openshift-auth-manager/internal/logging"
)

// AuthRequestCategory tags every event this package emits so log shippers can
// filter on it without parsing the message text.
const AuthRequestCategory = "AuthRequest"

// AuthRequest describes one authentication attempt, successful or not.
type AuthRequest struct {
	// ID correlates this event across the begin/commit boundary. Generate it
	// once per request with NewRequestID.
	ID string
	// Successful records the outcome. It is set right before Emit is called,
	// never inferred after the fact.
	Successful bool
	// Reason carries a short failure description; empty on success.
	Reason string
}

// NewRequestID returns a fresh correlation ID for one authentication attempt.
func NewRequestID() string {
	return uuid.NewString()
}

// Emit records the event via logger, always committing exactly one line per
// request regardless of outcome.
func Emit(logger logging.Logger, req AuthRequest) {
	if logger == nil {
		return
	}
	message := fmt.Sprintf("category=Cryostat label=%s request=%s requestSuccessful=%t", AuthRequestCategory, req.ID, req.Successful)
	if req.Reason != "" {
		message += fmt.Sprintf(" reason=%q", req.Reason)
	}
	if req.Successful {
		logger.Debug(message, AuthRequestCategory)
		return
	}
	logger.Warn(message, AuthRequestCategory)
}
