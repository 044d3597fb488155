package tokenize

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenizeDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	text := "Buy CHEAP deals now! Visit https://spam.example и пиши @evilbot"
	a := Tokenize(text, cfg)
	b := Tokenize(text, cfg)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("tokenizer is not deterministic: %v vs %v", a, b)
	}
}

func TestTokenizeStripsURLsAndMentions(t *testing.T) {
	cfg := DefaultConfig()
	tokens := Tokenize("click https://spam.example/win and t.me/joinchat or www.bad.site ping @evilbot", cfg)
	joined := strings.Join(tokens, " ")
	for _, banned := range []string{"http", "spam", "joinchat", "bad", "evilbot"} {
		if strings.Contains(joined, banned) {
			t.Fatalf("token stream still contains %q: %v", banned, tokens)
		}
	}
}

func TestTokenizeLowercaseAndStopwords(t *testing.T) {
	tokens := Tokenize("The Quick Deals AND простые скидки", DefaultConfig())
	for _, tok := range tokens {
		if tok != strings.ToLower(tok) {
			t.Fatalf("token %q not lowercased", tok)
		}
		if tok == "the" || tok == "and" || tok == "и" {
			t.Fatalf("stopword %q survived", tok)
		}
	}
}

func TestTokenizeLengthBoundsInclusive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bigrams = false
	cfg.MinLen = 2
	cfg.MaxLen = 5
	tokens := Tokenize("x ab abcde abcdef", cfg)
	want := []string{"ab", "abcde"} // both bounds inclusive
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}

func TestTokenizeNGrams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Trigrams = true
	cfg.Stopwords = map[string]struct{}{}
	tokens := Tokenize("buy cheap deals", cfg)

	want := []string{
		"buy", "cheap", "deals",
		"buy_cheap", "cheap_deals",
		"buy_cheap_deals",
	}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}

func TestTokenizeNGramFlagsOnlyAddTokens(t *testing.T) {
	base := DefaultConfig()
	base.Bigrams = false
	base.Trigrams = false

	withBi := base
	withBi.Bigrams = true

	text := "куплю дешевые скидки сегодня"
	unigrams := Tokenize(text, base)
	bigrams := Tokenize(text, withBi)

	if len(bigrams) <= len(unigrams) {
		t.Fatalf("bigram flag did not add tokens: %v vs %v", unigrams, bigrams)
	}
	// The unigram subsequence is stable: it prefixes the bigram output.
	for i, u := range unigrams {
		if bigrams[i] != u {
			t.Fatalf("unigram prefix unstable at %d: %v vs %v", i, unigrams, bigrams)
		}
	}
}

func TestTokenizeStripNumbers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bigrams = false
	cfg.StripNumbers = true
	tokens := Tokenize("win 1000 dollars room101", cfg)
	for _, tok := range tokens {
		if tok == "1000" {
			t.Fatalf("standalone number survived: %v", tokens)
		}
	}
	found := false
	for _, tok := range tokens {
		if tok == "room101" {
			found = true
		}
	}
	if !found {
		t.Fatalf("mixed token dropped: %v", tokens)
	}
}

func TestTokenizeKeepPunctuation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bigrams = false
	cfg.KeepPunctuation = true
	cfg.MinLen = 1
	tokens := Tokenize("wow!!! really", cfg)
	seen := false
	for _, tok := range tokens {
		if tok == "!!!" {
			seen = true
		}
	}
	if !seen {
		t.Fatalf("punctuation run not preserved: %v", tokens)
	}
}

func TestTokenizeDuplicatesPreserved(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bigrams = false
	tokens := Tokenize("spam spam spam", cfg)
	if len(tokens) != 3 {
		t.Fatalf("duplicates collapsed: %v", tokens)
	}
}

func TestSpamIndicators(t *testing.T) {
	ind := SpamIndicators("BUY NOW!!! Visit https://x.example and https://y.example ask @some_bot price 100 ??")
	if ind.URLCount != 2 {
		t.Errorf("URLCount = %d, want 2", ind.URLCount)
	}
	if ind.MentionCount != 1 {
		t.Errorf("MentionCount = %d, want 1", ind.MentionCount)
	}
	if ind.ExclamationCount != 3 {
		t.Errorf("ExclamationCount = %d, want 3", ind.ExclamationCount)
	}
	if ind.QuestionCount != 2 {
		t.Errorf("QuestionCount = %d, want 2", ind.QuestionCount)
	}
	if ind.NumberCount != 1 {
		t.Errorf("NumberCount = %d, want 1", ind.NumberCount)
	}
	if ind.CapsRatio <= 0 {
		t.Errorf("CapsRatio = %f, want > 0", ind.CapsRatio)
	}
	if ind.WordCount == 0 || ind.Length == 0 {
		t.Errorf("WordCount/Length not computed: %+v", ind)
	}
}

func TestSpamIndicatorsEmptyText(t *testing.T) {
	ind := SpamIndicators("")
	if ind.Length != 0 || ind.WordCount != 0 || ind.CapsRatio != 0 {
		t.Fatalf("zero text should yield zero indicators: %+v", ind)
	}
}
