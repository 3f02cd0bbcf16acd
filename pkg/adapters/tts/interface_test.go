package tts

import "testing"

func TestChooseVoicePreferenceOrder(t *testing.T) {
	t.Parallel()

	local := Voice{Name: "Compact en", Language: "en-US", Local: true}
	remote := Voice{Name: "Cloud en", Language: "en-GB", Local: false}
	premium := Voice{Name: "Studio", Language: "de-DE", Premium: true}
	other := Voice{Name: "Voz", Language: "es-ES", Local: true}

	tests := []struct {
		name      string
		voices    []Voice
		preferred string
		want      string
	}{
		{"preferred exact match wins", []Voice{local, remote, premium}, "Compact en", "Compact en"},
		{"unknown preferred falls through", []Voice{local, premium}, "No Such Voice", "Studio"},
		{"premium beats everything", []Voice{local, remote, premium}, "", "Studio"},
		{"remote english beats local english", []Voice{local, remote}, "", "Cloud en"},
		{"any english beats non-english", []Voice{other, local}, "", "Compact en"},
		{"first voice as last resort", []Voice{other}, "", "Voz"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ChooseVoice(tc.voices, tc.preferred)
			if !ok {
				t.Fatal("no voice chosen")
			}
			if got.Name != tc.want {
				t.Fatalf("chose %q, want %q", got.Name, tc.want)
			}
		})
	}
}

func TestChooseVoiceEmptyInventory(t *testing.T) {
	t.Parallel()

	if _, ok := ChooseVoice(nil, "anything"); ok {
		t.Fatal("empty inventory must not yield a voice")
	}
}
