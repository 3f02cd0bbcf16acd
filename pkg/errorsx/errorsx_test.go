package errorsx

import "testing"

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonTransport)
	if Reason(err) != ReasonTransport {
		t.Fatalf("expected reason %s, got %s", ReasonTransport, Reason(err))
	}
	if !HasReason(err, ReasonTransport) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonPermissionDenied)
	second := Wrap(first, ReasonTransport)
	if Reason(second) != ReasonPermissionDenied {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestRetryableClassification(t *testing.T) {
	if !IsRetryable(Wrap(assertErr{}, ReasonTransport)) {
		t.Fatalf("transport errors must be retryable")
	}
	if IsRetryable(Wrap(assertErr{}, ReasonPermissionDenied)) {
		t.Fatalf("permission errors must not be retried")
	}
	if IsRetryable(Wrap(assertErr{}, ReasonDeviceUnavailable)) {
		t.Fatalf("device errors must not be retried")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil error is not retryable")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
