package analysis

import (
	"reflect"
	"testing"
)

func TestNormalizeTopic(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Slow WiFi", "slow wifi"},
		{"strip punctuation", "wi-fi!!", "wi fi"},
		{"internal apostrophe kept", "Don't Crash", "don't crash"},
		{"leading apostrophe dropped", "'library", "library"},
		{"stop terms removed", "the slow wifi", "slow wifi"},
		{"only stop terms", "very really just", ""},
		{"token cap at two", "slow library wifi printer", "slow library"},
		{"collapse whitespace", "  slow   wifi  ", "slow wifi"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTopic(tt.in); got != tt.want {
				t.Errorf("NormalizeTopic(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTopic_EqualPhrasesSameKey(t *testing.T) {
	a := NormalizeTopic("Slow WiFi!")
	b := NormalizeTopic("slow wifi")
	if a != b {
		t.Errorf("expected identical keys, got %q and %q", a, b)
	}
}

func TestNormalizeTopics(t *testing.T) {
	got := NormalizeTopics([]string{"Slow WiFi", "slow wifi!", "", "the", "Library"})
	want := []string{"slow wifi", "library"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTopics = %v, want %v", got, want)
	}
}
