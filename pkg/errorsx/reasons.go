package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Device access failures are terminal for the current attempt and are
	// never retried automatically.
	ReasonPermissionDenied  ReasonCode = "permission_denied"
	ReasonDeviceUnavailable ReasonCode = "device_unavailable"

	// Transport failures are retried up to the link's bound, then terminal.
	ReasonTransport ReasonCode = "transport"

	// Protocol errors drop the offending message; the session continues.
	ReasonProtocol ReasonCode = "protocol"

	// Synthesis errors are non-fatal; the question text stays in the log.
	ReasonSynthesis ReasonCode = "synthesis"

	// Validation rejects a start before any socket is opened.
	ReasonValidation ReasonCode = "validation"

	ReasonSTTConnect ReasonCode = "stt_connect"
	ReasonSTTSend    ReasonCode = "stt_send"

	ReasonSessionConnect ReasonCode = "session_connect"
	ReasonSessionSend    ReasonCode = "session_send"
	ReasonSessionState   ReasonCode = "session_state"
)

// Retryable reports whether an error with this reason is a candidate for
// automatic reconnection. Device-access failures require user action and a
// manual restart.
func (r ReasonCode) Retryable() bool {
	switch r {
	case ReasonTransport, ReasonSTTConnect, ReasonSTTSend, ReasonSessionConnect:
		return true
	default:
		return false
	}
}
