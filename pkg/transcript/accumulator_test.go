package transcript

import "testing"

func TestFinalFragmentsJoinWithSpaces(t *testing.T) {
	t.Parallel()

	a := NewAccumulator()
	a.OnFragment("I think", false)
	a.OnFragment("I think React", true)
	a.OnFragment("is great", false)
	a.OnFragment("is great", true)

	if got := a.CommitAndExtract(); got != "I think React is great" {
		t.Fatalf("unexpected committed answer: %q", got)
	}
}

func TestInterimFragmentsNeverCommit(t *testing.T) {
	t.Parallel()

	a := NewAccumulator()
	a.OnFragment("hello wor", false)
	a.OnFragment("hello world fri", false)
	if a.Committed() != "" {
		t.Fatalf("interim fragments mutated committed text: %q", a.Committed())
	}
	if a.Preview() != "hello world fri" {
		t.Fatalf("newest interim should replace preview, got %q", a.Preview())
	}

	a.OnFragment("hello world friends", true)
	if a.Committed() != "hello world friends" {
		t.Fatalf("final fragment not committed: %q", a.Committed())
	}
	if a.Preview() != "" {
		t.Fatalf("preview should be discarded after a final fragment")
	}
}

func TestCommittedIndependentOfInterleavedInterims(t *testing.T) {
	t.Parallel()

	plain := NewAccumulator()
	noisy := NewAccumulator()
	finals := []string{"one", "two", "three"}
	for i, f := range finals {
		noisy.OnFragment("garbage", false)
		noisy.OnFragment(f, true)
		plain.OnFragment(f, true)
		_ = i
	}
	if plain.CommitAndExtract() != noisy.CommitAndExtract() {
		t.Fatalf("interims influenced committed text: %q vs %q",
			plain.CommitAndExtract(), noisy.CommitAndExtract())
	}
	if noisy.CommitAndExtract() != "one two three" {
		t.Fatalf("unexpected join: %q", noisy.CommitAndExtract())
	}
}

func TestDisplayConcatenatesPreview(t *testing.T) {
	t.Parallel()

	a := NewAccumulator()
	a.OnFragment("first part", true)
	got := a.OnFragment("second", false)
	if got != "first part second" {
		t.Fatalf("display: got %q", got)
	}
	if a.Display() != got {
		t.Fatalf("Display drifted from OnFragment return")
	}
}

func TestResetThenExtractIsEmpty(t *testing.T) {
	t.Parallel()

	a := NewAccumulator()
	a.OnFragment("something", true)
	a.OnFragment("pending", false)
	a.Reset()
	if got := a.CommitAndExtract(); got != "" {
		t.Fatalf("expected empty after reset, got %q", got)
	}
	// Double reset is safe.
	a.Reset()
	if got := a.CommitAndExtract(); got != "" {
		t.Fatalf("double reset broke buffer: %q", got)
	}
}

func TestBlankFragmentsIgnored(t *testing.T) {
	t.Parallel()

	a := NewAccumulator()
	a.OnFragment("answer", true)
	a.OnFragment("   ", true)
	a.OnFragment("", false)
	if got := a.CommitAndExtract(); got != "answer" {
		t.Fatalf("blank fragment mutated buffer: %q", got)
	}
}
