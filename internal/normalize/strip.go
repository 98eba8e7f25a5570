package normalize

import (
	"strings"
	"unicode"
)

var reasoningTags = [][2]string{
	{"<think>", "</think>"},
	{"<thinking>", "</thinking>"},
}

const fence = "```"

// Strip removes leading reasoning blocks and surrounding code fences from
// a model reply, repeating until nothing more comes off. Applying it twice
// gives the same result as applying it once.
func Strip(text string) string {
	text = strings.TrimSpace(text)
	for {
		next := stripFence(stripReasoning(text))
		if next == text {
			return text
		}
		text = next
	}
}

// stripReasoning drops every complete reasoning block at the start of text.
// An unterminated block is left in place.
func stripReasoning(text string) string {
	for {
		trimmed := false
		for _, tag := range reasoningTags {
			if !strings.HasPrefix(text, tag[0]) {
				continue
			}
			end := strings.Index(text, tag[1])
			if end < 0 {
				return text
			}
			text = strings.TrimSpace(text[end+len(tag[1]):])
			trimmed = true
		}
		if !trimmed {
			return text
		}
	}
}

// stripFence unwraps text that begins with a code fence, with or without a
// language tag, and drops the closing fence when present.
func stripFence(text string) string {
	if !strings.HasPrefix(text, fence) {
		return text
	}
	text = text[len(fence):]
	text = strings.TrimLeftFunc(text, isLangTagRune)
	if strings.HasSuffix(strings.TrimSpace(text), fence) {
		text = strings.TrimSpace(text)
		text = text[:len(text)-len(fence)]
	}
	return strings.TrimSpace(text)
}

func isLangTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '+'
}
