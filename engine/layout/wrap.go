package layout

import (
	"strings"
	"unicode"
)

// clusters splits text into user-perceived characters: a base rune followed by any
// combining marks. Line breaks are only ever placed between clusters.
func clusters(text string) []string {
	var result []string
	for _, r := range text {
		if len(result) > 0 && (unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Me, r) || r == '\u200d' || unicode.Is(unicode.Variation_Selector, r)) {
			result[len(result)-1] += string(r)
			continue
		}
		result = append(result, string(r))
	}
	return result
}

func isBlank(cluster string) bool {
	return strings.TrimSpace(cluster) == ""
}

// wrap breaks text into lines no wider than maxWidth. overflow reports a single
// character wider than maxWidth, which is then left alone on its line.
func (f *fitter) wrap(text string, size float64) (lines []string, overflow bool, err error) {
	lines = []string{}
	for _, paragraph := range strings.Split(text, "\n") {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		var wrapped []string
		var over bool
		if f.cjk {
			wrapped, over, err = f.wrapCharacters(strings.TrimSpace(paragraph), size)
		} else {
			wrapped, over, err = f.wrapWords(paragraph, size)
		}
		if err != nil {
			return nil, false, err
		}
		lines = append(lines, wrapped...)
		overflow = overflow || over
	}
	return lines, overflow, nil
}

// wrapWords breaks on whitespace, hard-breaking words that do not fit on a line of
// their own.
func (f *fitter) wrapWords(paragraph string, size float64) ([]string, bool, error) {
	var lines []string
	overflow := false
	line := ""
	for _, word := range strings.Fields(paragraph) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		width, err := f.width(candidate, size)
		if err != nil {
			return nil, false, err
		}
		if width <= f.maxWidth {
			line = candidate
			continue
		}

		if line != "" {
			lines = append(lines, line)
			line = ""
		}
		width, err = f.width(word, size)
		if err != nil {
			return nil, false, err
		}
		if width <= f.maxWidth {
			line = word
			continue
		}

		chunks, over, err := f.wrapCharacters(word, size)
		if err != nil {
			return nil, false, err
		}
		overflow = overflow || over
		lines = append(lines, chunks[:len(chunks)-1]...)
		line = chunks[len(chunks)-1]
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines, overflow, nil
}

// wrapCharacters fills each line with as many characters as fit. Whitespace at the
// start and end of a line is dropped.
func (f *fitter) wrapCharacters(text string, size float64) ([]string, bool, error) {
	var lines []string
	overflow := false
	line := ""
	for _, cluster := range clusters(text) {
		if line == "" && isBlank(cluster) {
			continue
		}
		candidate := line + cluster
		width, err := f.width(candidate, size)
		if err != nil {
			return nil, false, err
		}
		if width <= f.maxWidth || line == "" {
			if line == "" && width > f.maxWidth {
				overflow = true
			}
			line = candidate
			continue
		}
		lines = append(lines, strings.TrimRightFunc(line, unicode.IsSpace))
		line = ""
		if !isBlank(cluster) {
			line = cluster
			width, err = f.width(line, size)
			if err != nil {
				return nil, false, err
			}
			overflow = overflow || width > f.maxWidth
		}
	}
	if line = strings.TrimRightFunc(line, unicode.IsSpace); line != "" {
		lines = append(lines, line)
	}
	return lines, overflow, nil
}
