package retriever

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// englishStopwords is the NLTK English list.
var englishStopwords = []string{
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "you're", "you've", "you'll", "you'd",
	"your", "yours", "yourself", "yourselves", "he", "him", "his", "himself", "she", "she's", "her", "hers",
	"herself", "it", "it's", "its", "itself", "they", "them", "their", "theirs", "themselves", "what", "which",
	"who", "whom", "this", "that", "that'll", "these", "those", "am", "is", "are", "was", "were", "be", "been",
	"being", "have", "has", "had", "having", "do", "does", "did", "doing", "a", "an", "the", "and", "but", "if",
	"or", "because", "as", "until", "while", "of", "at", "by", "for", "with", "about", "against", "between",
	"into", "through", "during", "before", "after", "above", "below", "to", "from", "up", "down", "in", "out",
	"on", "off", "over", "under", "again", "further", "then", "once", "here", "there", "when", "where", "why",
	"how", "all", "any", "both", "each", "few", "more", "most", "other", "some", "such", "no", "nor", "not",
	"only", "own", "same", "so", "than", "too", "very", "s", "t", "can", "will", "just", "don", "don't",
	"should", "should've", "now", "d", "ll", "m", "o", "re", "ve", "y", "ain", "aren", "aren't", "couldn",
	"couldn't", "didn", "didn't", "doesn", "doesn't", "hadn", "hadn't", "hasn", "hasn't", "haven", "haven't",
	"isn", "isn't", "ma", "mightn", "mightn't", "mustn", "mustn't", "needn", "needn't", "shan", "shan't",
	"shouldn", "shouldn't", "wasn", "wasn't", "weren", "weren't", "won", "won't", "wouldn", "wouldn't",
}

// wordRe splits text into runs of word characters and runs of punctuation.
var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]+`)

// Rake ranks candidate keyword phrases. Phrases are maximal runs of words
// between stopwords and punctuation; a word scores degree/frequency and a
// phrase scores the sum of its words.
type Rake struct {
	stopwords map[string]bool
}

func NewRake() *Rake {
	sw := make(map[string]bool, len(englishStopwords))
	for _, w := range englishStopwords {
		sw[w] = true
	}
	return &Rake{stopwords: sw}
}

type scoredPhrase struct {
	phrase string
	score  float64
}

// Top returns up to n phrases, best first. Ties fall back to reverse
// lexical order.
func (r *Rake) Top(text string, n int) []string {
	ranked := r.rank(text)
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, p := range ranked[:n] {
		out = append(out, p.phrase)
	}
	return out
}

func (r *Rake) rank(text string) []scoredPhrase {
	phrases := r.phrases(text)
	if len(phrases) == 0 {
		return nil
	}

	freq := map[string]int{}
	degree := map[string]int{}
	for _, p := range phrases {
		for _, w := range p {
			freq[w]++
			degree[w] += len(p)
		}
	}

	seen := map[string]bool{}
	var ranked []scoredPhrase
	for _, p := range phrases {
		key := strings.Join(p, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		var score float64
		for _, w := range p {
			score += float64(degree[w]) / float64(freq[w])
		}
		ranked = append(ranked, scoredPhrase{phrase: key, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].phrase > ranked[j].phrase
	})
	return ranked
}

func (r *Rake) phrases(text string) [][]string {
	var out [][]string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	for _, tok := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if r.stopwords[tok] || !isWord(tok) {
			flush()
			continue
		}
		cur = append(cur, tok)
	}
	flush()
	return out
}

func isWord(tok string) bool {
	for _, c := range tok {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			return true
		}
	}
	return false
}
