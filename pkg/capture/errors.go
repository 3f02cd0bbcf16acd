package capture

import (
	"strings"

	"github.com/hirevox/hirevox/pkg/errorsx"
)

// ClassifyStartError maps a capture start failure onto the device error
// taxonomy. Permission and missing-device failures are terminal for the
// attempt and must not be retried automatically; everything else is treated
// as a transport-level fault.
func ClassifyStartError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "not allowed"):
		return errorsx.Wrap(err, errorsx.ReasonPermissionDenied)
	case strings.Contains(msg, "no such device") ||
		strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "device not found") ||
		strings.Contains(msg, "device or resource busy") ||
		strings.Contains(msg, "not found"):
		return errorsx.Wrap(err, errorsx.ReasonDeviceUnavailable)
	default:
		return errorsx.Wrap(err, errorsx.ReasonTransport)
	}
}
