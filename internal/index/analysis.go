package index

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// BigramTokenizerName splits text into overlapping two-character terms.
	BigramTokenizerName = "bigram"

	// BigramAnalyzerName is the content analyzer: bigrams, lowercased.
	BigramAnalyzerName = "bigram_lowercase"

	// BranchesAnalyzerName splits a space separated branch list.
	BranchesAnalyzerName = "branch_list"
)

func init() {
	_ = registry.RegisterTokenizer(BigramTokenizerName, bigramTokenizerConstructor)
}

func bigramTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bigramTokenizer{}, nil
}

// bigramTokenizer emits every pair of adjacent characters at consecutive
// positions, so a phrase over the bigrams of a string matches it as a
// substring. Input shorter than two characters yields no tokens.
type bigramTokenizer struct{}

func (t *bigramTokenizer) Tokenize(input []byte) analysis.TokenStream {
	offsets := make([]int, 0, len(input)+1)
	for i := range string(input) {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(input))

	runes := len(offsets) - 1
	if runes < 2 {
		return analysis.TokenStream{}
	}

	stream := make(analysis.TokenStream, 0, runes-1)
	for i := 0; i+2 <= runes; i++ {
		start, end := offsets[i], offsets[i+2]
		// token filters may rewrite terms in place
		term := make([]byte, end-start)
		copy(term, input[start:end])
		stream = append(stream, &analysis.Token{
			Term:     term,
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}
