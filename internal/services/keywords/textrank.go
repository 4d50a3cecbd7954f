// -----------------------------------------------------------------------
// TextRank - graph-based keyword ranking over word co-occurrence
// -----------------------------------------------------------------------

package keywords

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/libris/internal/models"
)

const (
	dampingFactor = 0.85
	iterations    = 20
	windowSize    = 5
	convergence   = 0.0001
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// stopwords excluded from the co-occurrence graph
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "if": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "not": {}, "of": {}, "on": {}, "or": {}, "she": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "to": {}, "was": {}, "were": {},
	"which": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

// Rank scores words in the text by TextRank and returns the topK keywords,
// highest weight first. Weights are normalized to the top score and rounded
// to four decimals. Ties break alphabetically so output is deterministic.
func Rank(text string, topK int) []models.Keyword {
	if topK <= 0 {
		topK = 10
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	// Undirected co-occurrence graph over a sliding window
	graph := make(map[string]map[string]float64)
	addEdge := func(a, b string) {
		if a == b {
			return
		}
		if graph[a] == nil {
			graph[a] = make(map[string]float64)
		}
		graph[a][b]++
	}
	for i, word := range tokens {
		end := i + windowSize
		if end > len(tokens) {
			end = len(tokens)
		}
		for j := i + 1; j < end; j++ {
			addEdge(word, tokens[j])
			addEdge(tokens[j], word)
		}
	}

	if len(graph) == 0 {
		return nil
	}

	// Weighted PageRank over the graph
	scores := make(map[string]float64, len(graph))
	outWeight := make(map[string]float64, len(graph))
	for word, edges := range graph {
		scores[word] = 1.0
		for _, w := range edges {
			outWeight[word] += w
		}
	}

	for iter := 0; iter < iterations; iter++ {
		next := make(map[string]float64, len(graph))
		maxDelta := 0.0
		for word, edges := range graph {
			sum := 0.0
			for neighbor, w := range edges {
				if outWeight[neighbor] > 0 {
					sum += scores[neighbor] * w / outWeight[neighbor]
				}
			}
			next[word] = (1 - dampingFactor) + dampingFactor*sum
			if delta := math.Abs(next[word] - scores[word]); delta > maxDelta {
				maxDelta = delta
			}
		}
		scores = next
		if maxDelta < convergence {
			break
		}
	}

	words := make([]string, 0, len(scores))
	for word := range scores {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if scores[words[i]] != scores[words[j]] {
			return scores[words[i]] > scores[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > topK {
		words = words[:topK]
	}

	top := scores[words[0]]
	result := make([]models.Keyword, 0, len(words))
	for _, word := range words {
		weight := scores[word]
		if top > 0 {
			weight = weight / top
		}
		result = append(result, models.Keyword{
			Word:   word,
			Weight: math.Round(weight*10000) / 10000,
		})
	}
	return result
}

// tokenize lowercases and splits text into graph candidates, dropping
// stopwords and single characters
func tokenize(text string) []string {
	matches := wordPattern.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(matches))
	for _, word := range matches {
		if len([]rune(word)) < 2 {
			continue
		}
		if _, ok := stopwords[word]; ok {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}
