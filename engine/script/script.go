// Package script classifies text by writing system.
package script

import "unicode"

type Script int

const (
	// Latin covers every script wrapped on whitespace, including Hangul.
	Latin Script = iota
	// CJK covers Han ideographs, Hiragana and Katakana, wrapped per character.
	CJK
)

func (s Script) String() string {
	if s == CJK {
		return "cjk"
	}
	return "latin"
}

// IsCJK reports whether r is a Han ideograph, Hiragana or Katakana.
func IsCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}

// Detect classifies text as CJK when it contains any CJK code point.
func Detect(text string) Script {
	for _, r := range text {
		if IsCJK(r) {
			return CJK
		}
	}
	return Latin
}
