package splitter

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	sharedCounterOnce sync.Once
	sharedCounter     *tokenCounter
)

// CountTokens counts BPE tokens with the same cl100k_base encoding the
// splitters use, exposed for the retrieval service's context-budget
// admission accounting.
func CountTokens(text string) int {
	sharedCounterOnce.Do(func() { sharedCounter = newTokenCounter() })
	return sharedCounter.Count(text)
}

// tokenCounter counts BPE tokens the same way the semantic splitter and the
// retrieval service's context-budget accounting do, so a chunk's recorded
// token count always matches what the prompt builder will charge it.
type tokenCounter struct {
	enc *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &tokenCounter{}
	}
	return &tokenCounter{enc: enc}
}

func (t *tokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return len([]rune(text)) / 4
}

// PrefixWithinBudget returns the largest rune-prefix of text whose token
// count is <= budget, used by the semantic splitter's oversized-sentence
// binary search.
func (t *tokenCounter) PrefixWithinBudget(text string, budget int) string {
	runes := []rune(text)
	lo, hi := 0, len(runes)
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if t.Count(string(runes[:mid])) <= budget {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == 0 && len(runes) > 0 {
		best = 1 // guarantee progress even if a single rune exceeds budget
	}
	return string(runes[:best])
}

// Tail returns the last `limit` BPE tokens of text, decoded back to a
// string, for seeding the next chunk's overlap.
func (t *tokenCounter) Tail(text string, limit int) string {
	if limit <= 0 || text == "" {
		return ""
	}
	if t.enc == nil {
		runes := []rune(text)
		if len(runes) <= limit {
			return text
		}
		return string(runes[len(runes)-limit:])
	}
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= limit {
		return text
	}
	return t.enc.Decode(ids[len(ids)-limit:])
}
