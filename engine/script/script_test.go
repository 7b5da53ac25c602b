package script

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		text string
		want Script
	}{
		{"Hello, world", Latin},
		{"", Latin},
		{"안녕하세요", Latin},
		{"こんにちは", CJK},
		{"カタカナ", CJK},
		{"漢字", CJK},
		{"OK!大丈夫", CJK},
	}

	for _, tt := range tests {
		if got := Detect(tt.text); got != tt.want {
			t.Errorf("Detect(%q) => %v, want %v", tt.text, got, tt.want)
		}
	}
}
