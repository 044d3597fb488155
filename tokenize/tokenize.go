// Package tokenize turns message text into classifier tokens and computes
// the raw-text spam indicators consumed by the decision engine.
package tokenize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Config controls every tokenizer stage. The zero value disables
// everything; use DefaultConfig for the classifier defaults.
type Config struct {
	StripURLs     bool
	StripMentions bool
	StripNumbers  bool
	StripEmoji    bool

	Lowercase       bool
	KeepPunctuation bool

	// Length bounds are inclusive on both ends.
	MinLen int
	MaxLen int

	Bigrams  bool
	Trigrams bool

	// Stopwords maps lowercased tokens to drop. Nil means DefaultStopwords.
	Stopwords map[string]struct{}
}

// DefaultConfig returns the classifier defaults: strip URLs and mentions,
// lowercase, keep words of 2..50 runes, drop RU+EN stopwords, emit
// unigrams and bigrams.
func DefaultConfig() Config {
	return Config{
		StripURLs:     true,
		StripMentions: true,
		Lowercase:     true,
		MinLen:        2,
		MaxLen:        50,
		Bigrams:       true,
	}
}

var (
	urlRe     = regexp.MustCompile(`(?i)(?:https?://|www\.|t\.me/)\S+`)
	mentionRe = regexp.MustCompile(`@\w+`)
	// Go's \w is ASCII-only; word runes must cover Unicode letters and
	// digits for the Russian corpus.
	wordRe      = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	punctRe     = regexp.MustCompile(`[!?.,:;…]+`)
	spaceRe     = regexp.MustCompile(`\s+`)
	wordPunctRe = regexp.MustCompile(wordRe.String() + `|` + punctRe.String())
)

// NGramSep joins the words of a bigram or trigram.
const NGramSep = "_"

// Tokenize runs the full pipeline: strip, normalize, extract, filter,
// n-gram. Output order is deterministic and may contain duplicates;
// callers decide whether to deduplicate.
func Tokenize(text string, cfg Config) []string {
	text = norm.NFKC.String(text)

	if cfg.StripURLs {
		text = urlRe.ReplaceAllString(text, " ")
	}
	if cfg.StripMentions {
		text = mentionRe.ReplaceAllString(text, " ")
	}
	if cfg.StripEmoji {
		text = stripEmoji(text)
	}

	text = spaceRe.ReplaceAllString(text, " ")
	if cfg.Lowercase {
		text = strings.ToLower(text)
	}

	var raw []string
	if cfg.KeepPunctuation {
		raw = extractWithPunctuation(text)
	} else {
		raw = wordRe.FindAllString(text, -1)
	}

	stop := cfg.Stopwords
	if stop == nil {
		stop = DefaultStopwords
	}

	words := raw[:0:0]
	for _, w := range raw {
		n := len([]rune(w))
		if n < cfg.MinLen || (cfg.MaxLen > 0 && n > cfg.MaxLen) {
			continue
		}
		if _, isStop := stop[strings.ToLower(w)]; isStop {
			continue
		}
		if cfg.StripNumbers && isAllDigits(w) {
			continue
		}
		words = append(words, w)
	}

	tokens := make([]string, 0, len(words)*2)
	tokens = append(tokens, words...)
	if cfg.Bigrams {
		for i := 0; i+1 < len(words); i++ {
			tokens = append(tokens, words[i]+NGramSep+words[i+1])
		}
	}
	if cfg.Trigrams {
		for i := 0; i+2 < len(words); i++ {
			tokens = append(tokens, words[i]+NGramSep+words[i+1]+NGramSep+words[i+2])
		}
	}
	return tokens
}

// extractWithPunctuation interleaves word tokens and punctuation-run tokens
// in text order.
func extractWithPunctuation(text string) []string {
	return wordPunctRe.FindAllString(text, -1)
}

// isAllDigits reports whether w is a standalone number. Digits embedded in
// mixed tokens are kept.
func isAllDigits(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(w) > 0
}

// stripEmoji removes symbol and pictographic runes.
func stripEmoji(text string) string {
	return strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return ' '
		}
		return r
	}, text)
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	case unicode.Is(unicode.So, r):
		return true
	}
	return false
}
