package redact

import "testing"

func TestTextMasksContactDetails(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	in := "reach me at sam.chen@example.com or +62 812-3456-7890 anytime"
	got := Text(in)
	if got != "reach me at [REDACTED_EMAIL] or [REDACTED_PHONE] anytime" {
		t.Fatalf("redacted = %q", got)
	}
}

func TestTextPassthroughWhenDisabled(t *testing.T) {
	SetEnabled(false)
	in := "mail me: a@b.io"
	if got := Text(in); got != in {
		t.Fatalf("disabled redaction altered text: %q", got)
	}
}
