package tokenize

import (
	"strings"
	"unicode"
)

// Indicators are surface features of the raw message text used by the
// decision engine's rule heuristics. They are computed before any
// stripping or normalization.
type Indicators struct {
	URLCount         int
	MentionCount     int
	NumberCount      int
	EmojiCount       int
	CapsRatio        float64
	ExclamationCount int
	QuestionCount    int
	Length           int
	WordCount        int
}

// SpamIndicators computes Indicators for text.
func SpamIndicators(text string) Indicators {
	ind := Indicators{
		URLCount:     len(urlRe.FindAllString(text, -1)),
		MentionCount: len(mentionRe.FindAllString(text, -1)),
		Length:       len([]rune(text)),
	}

	var upper, letters int
	for _, r := range text {
		switch {
		case r == '!':
			ind.ExclamationCount++
		case r == '?':
			ind.QuestionCount++
		case isEmoji(r) && r != 0xFE0F && r != 0x200D:
			ind.EmojiCount++
		case unicode.IsLetter(r):
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters > 0 {
		ind.CapsRatio = float64(upper) / float64(letters)
	}

	for _, w := range strings.Fields(text) {
		ind.WordCount++
		if isAllDigits(strings.Trim(w, ".,!?")) {
			ind.NumberCount++
		}
	}
	return ind
}
