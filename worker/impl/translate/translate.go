// Package translate holds the batch prompt protocol shared by the LLM translators:
// segments are sent as "[i] text" lines and answered the same way.
package translate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrEmptyResponse = errors.New("no translation in response")

// Segment is one piece of source text to translate, identified by its block id.
type Segment struct {
	ID   string
	Text string
}

const SystemPrompt = "You are a professional manga translator. Translate dialogue accurately while " +
	"preserving the original meaning, tone and brevity. Keep each line short enough for a speech balloon."

// LanguageName spells out common language tags for the prompt. Unknown tags are used
// as given.
func LanguageName(tag string) string {
	switch strings.ToUpper(strings.ReplaceAll(tag, "_", "-")) {
	case "EN", "EN-US", "EN-GB":
		return "English"
	case "KO", "KO-KR":
		return "Korean"
	case "JA", "JA-JP":
		return "Japanese"
	case "ZH", "ZH-CN", "ZH-HANS":
		return "Simplified Chinese"
	case "ZH-TW", "ZH-HANT":
		return "Traditional Chinese"
	case "ES":
		return "Spanish"
	case "FR":
		return "French"
	case "DE":
		return "German"
	}
	return tag
}

// Prompt builds the user prompt for a batch of segments. Newlines inside a segment are
// folded into spaces so every segment stays on its own indexed line.
func Prompt(segments []Segment, targetLanguage string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Translate the following texts to %s. Return only the translations in the same order, "+
		"with each translation on a new line prefixed with its index number [0], [1], etc. "+
		"Do not include any explanations or additional text.\n\n", LanguageName(targetLanguage))
	for i, segment := range segments {
		fmt.Fprintf(&builder, "[%d] %s\n", i, strings.Join(strings.Fields(segment.Text), " "))
	}
	return builder.String()
}

var indexedLine = regexp.MustCompile(`^\s*\[(\d+)\]\s?(.*)$`)

// Parse reads an indexed response back into translations keyed by segment id. Lines
// without a valid index continue the previous translation; indices outside the batch
// and blank translations are ignored.
func Parse(response string, segments []Segment) (map[string]string, error) {
	translations := make(map[string]string, len(segments))
	current := -1
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		if match := indexedLine.FindStringSubmatch(line); match != nil {
			index, err := strconv.Atoi(match[1])
			if err != nil || index >= len(segments) {
				current = -1
				continue
			}
			current = index
			translations[segments[index].ID] = strings.TrimSpace(match[2])
			continue
		}
		if current >= 0 {
			id := segments[current].ID
			translations[id] = strings.TrimSpace(translations[id] + " " + line)
		}
	}

	for id, text := range translations {
		if text == "" {
			delete(translations, id)
		}
	}
	if len(translations) == 0 && len(segments) > 0 {
		return nil, ErrEmptyResponse
	}
	return translations, nil
}
