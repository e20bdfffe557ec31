package child

import "strings"

// TokenCounter approximates the serialized token cost of a tool schema
// payload for orchestrator budgeting (spec.md §4.3 get_tools_info,
// §9 "tokenizer model name is hard-coded ... treat the counter as
// pluggable"). The default estimator below is a deliberately crude
// whitespace-split count: no tokenizer library appears anywhere in the
// retrieved example pack (see DESIGN.md), so this stays on the standard
// library rather than faking a dependency that isn't grounded in the corpus.
type TokenCounter interface {
	Count(schemaJSON string) int
}

// WordCountEstimator counts whitespace-separated tokens as a stand-in for a
// real tokenizer. It systematically undercounts relative to BPE tokenizers
// but is stable and dependency-free.
type WordCountEstimator struct{}

func (WordCountEstimator) Count(schemaJSON string) int {
	return len(strings.Fields(schemaJSON))
}

// DefaultTokenCounter is used when a Supervisor is not given one explicitly.
var DefaultTokenCounter TokenCounter = WordCountEstimator{}
