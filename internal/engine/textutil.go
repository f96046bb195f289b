package engine

import (
	"strings"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/sensevoice"
)

// diffTranscript returns the suffix of current that extends previous, or all
// of current when the hypothesis was revised.
func diffTranscript(previous, current string) string {
	prevTrimmed := strings.TrimSpace(previous)
	currTrimmed := strings.TrimSpace(current)

	if prevTrimmed == "" || !strings.HasPrefix(currTrimmed, prevTrimmed) {
		return currTrimmed
	}
	return strings.TrimLeft(currTrimmed[len(prevTrimmed):], " \t\r\n")
}

// normaliseLanguage returns the first non-empty candidate, lower-cased, or
// the SenseVoice auto-detect code.
func normaliseLanguage(candidates ...string) string {
	for _, c := range candidates {
		if trimmed := strings.ToLower(strings.TrimSpace(c)); trimmed != "" {
			return trimmed
		}
	}
	return sensevoice.AutoLanguage
}

// preferLanguage turns an auto hint into an empty one so later candidates win.
func preferLanguage(lang string) string {
	trimmed := strings.ToLower(strings.TrimSpace(lang))
	if trimmed == sensevoice.AutoLanguage {
		return ""
	}
	return trimmed
}

// stripSpecialTags drops leading SenseVoice markers such as <|en|><|NEUTRAL|><|Speech|><|woitn|>.
func stripSpecialTags(text string) string {
	rest := strings.TrimSpace(text)
	for strings.HasPrefix(rest, "<|") {
		end := strings.Index(rest, "|>")
		if end < 0 {
			break
		}
		rest = strings.TrimLeft(rest[end+2:], " ")
	}
	return strings.TrimSpace(rest)
}
