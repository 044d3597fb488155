package tokenize

// DefaultStopwords unions common Russian and English function words.
// Tokens whose lowercased form appears here are dropped before n-gram
// generation.
var DefaultStopwords = stopwordSet(
	// Russian
	"и", "в", "во", "не", "что", "он", "на", "я", "с", "со", "как", "а",
	"то", "все", "она", "так", "его", "но", "да", "ты", "к", "у", "же",
	"вы", "за", "бы", "по", "только", "ее", "мне", "было", "вот", "от",
	"меня", "еще", "нет", "о", "из", "ему", "теперь", "когда", "даже",
	"ну", "вдруг", "ли", "если", "уже", "или", "ни", "быть", "был",
	"него", "до", "вас", "нибудь", "опять", "уж", "вам", "ведь", "там",
	"потом", "себя", "ничего", "ей", "может", "они", "тут", "где", "есть",
	"надо", "ней", "для", "мы", "тебя", "их", "чем", "была", "сам", "чтоб",
	"без", "будто", "чего", "раз", "тоже", "себе", "под", "будет", "тогда",
	"кто", "этот", "того", "потому", "этого", "какой", "ним", "здесь",
	"это", "эти", "при", "об", "хоть", "после", "над", "больше", "тот",
	"через", "эту", "нас", "про", "них", "какая", "много", "разве", "сказал",
	// English
	"the", "a", "an", "and", "or", "but", "if", "of", "at", "by", "for",
	"with", "about", "to", "from", "in", "on", "off", "out", "up", "down",
	"is", "are", "was", "were", "be", "been", "being", "am", "do", "does",
	"did", "have", "has", "had", "will", "would", "should", "can", "could",
	"may", "might", "must", "shall", "this", "that", "these", "those",
	"it", "its", "he", "she", "they", "them", "his", "her", "their", "our",
	"we", "you", "your", "i", "me", "my", "mine", "who", "whom", "which",
	"what", "when", "where", "why", "how", "all", "any", "both", "each",
	"few", "more", "most", "other", "some", "such", "no", "nor", "not",
	"only", "own", "same", "so", "than", "too", "very", "just", "as",
	"into", "over", "under", "again", "then", "once", "here", "there",
)

func stopwordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
