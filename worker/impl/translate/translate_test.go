package translate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var segments = []Segment{
	{ID: "a", Text: "こんにちは"},
	{ID: "b", Text: "元気\nですか"},
	{ID: "c", Text: "さようなら"},
}

func TestPrompt(t *testing.T) {
	prompt := Prompt(segments, "en-us")
	require.Contains(t, prompt, "to English.")
	require.Contains(t, prompt, "[0] こんにちは\n")
	require.Contains(t, prompt, "[1] 元気 ですか\n")
	require.Contains(t, prompt, "[2] さようなら\n")
}

func TestLanguageName(t *testing.T) {
	require.Equal(t, "Korean", LanguageName("KO_KR"))
	require.Equal(t, "Japanese", LanguageName("ja"))
	require.Equal(t, "Klingon", LanguageName("Klingon"))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     map[string]string
	}{
		{
			name:     "in order",
			response: "[0] Hello\n[1] How are you\n[2] Goodbye\n",
			want:     map[string]string{"a": "Hello", "b": "How are you", "c": "Goodbye"},
		},
		{
			name:     "out of order with padding",
			response: "  [2]   Goodbye \r\n\n[0]Hello",
			want:     map[string]string{"a": "Hello", "c": "Goodbye"},
		},
		{
			name:     "continuation lines",
			response: "[0] Hello\nthere\n[1] Fine",
			want:     map[string]string{"a": "Hello there", "b": "Fine"},
		},
		{
			name:     "unknown index and blank translation",
			response: "[7] Nope\n[0]\n[1] Fine",
			want:     map[string]string{"b": "Fine"},
		},
		{
			name:     "preamble ignored",
			response: "Sure! Here you go:\n[0] Hello",
			want:     map[string]string{"a": "Hello"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.response, segments)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("I cannot help with that.", segments)
	require.ErrorIs(t, err, ErrEmptyResponse)

	got, err := Parse("", nil)
	require.NoError(t, err)
	require.Empty(t, got)
}
