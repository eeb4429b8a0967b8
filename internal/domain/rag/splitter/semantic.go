package splitter

import (
	"strings"
	"unicode"

	rag "github.com/yanqian/ragserver/internal/domain/rag"
)

// Semantic packs sentences into token-budgeted chunks. Paragraphs are
// separated by "\n\n"; within a paragraph, sentences end in '.', '!', or
// '?' followed by whitespace or end-of-paragraph. Sentences are packed
// greedily until the next sentence would exceed MaxTokens, at which point
// the chunk is emitted and the next one seeded with the OverlapTokens tail
// of the previous chunk. A sentence whose own token count exceeds
// MaxTokens is split by binary-search character window so no data is lost.
type Semantic struct {
	MaxTokens     int
	OverlapTokens int
	counter       *tokenCounter
}

// NewSemantic constructs a Semantic splitter.
func NewSemantic(maxTokens, overlapTokens int) *Semantic {
	if maxTokens <= 0 {
		maxTokens = 800
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = 0
	}
	return &Semantic{MaxTokens: maxTokens, OverlapTokens: overlapTokens, counter: newTokenCounter()}
}

// Split implements rag.TextSplitter.
func (s *Semantic) Split(text string, _ rag.DocumentID) ([]rag.ChunkCandidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var (
		out          []rag.ChunkCandidate
		current      strings.Builder
		currentTok   int
		globalOffset int
	)

	flush := func() {
		content := strings.TrimSpace(current.String())
		if content == "" {
			current.Reset()
			currentTok = 0
			return
		}
		out = append(out, rag.ChunkCandidate{Text: content, Offset: globalOffset})
		globalOffset += len(content)
		current.Reset()
		currentTok = 0
	}

	seedOverlap := func() {
		if s.OverlapTokens <= 0 || len(out) == 0 {
			return
		}
		tail := s.tailTokens(out[len(out)-1].Text, s.OverlapTokens)
		if tail == "" {
			return
		}
		current.WriteString(tail)
		current.WriteString(" ")
		currentTok = s.counter.Count(tail)
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		for _, sentence := range splitSentences(paragraph) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			sentenceTok := s.counter.Count(sentence)

			if sentenceTok > s.MaxTokens {
				// Oversized sentence: flush what we have, then binary-search
				// split the sentence itself so concatenation of the pieces
				// equals the original sentence.
				flush()
				for _, piece := range s.splitOversized(sentence) {
					out = append(out, rag.ChunkCandidate{Text: piece, Offset: globalOffset})
					globalOffset += len(piece)
				}
				continue
			}

			if currentTok+sentenceTok > s.MaxTokens && currentTok > 0 {
				flush()
				seedOverlap()
			}
			current.WriteString(sentence)
			current.WriteString(" ")
			currentTok += sentenceTok
		}
	}
	flush()
	return out, nil
}

// splitOversized repeatedly takes the largest token-budget-respecting
// prefix of sentence, guaranteeing termination and no data loss.
func (s *Semantic) splitOversized(sentence string) []string {
	var pieces []string
	remaining := sentence
	for remaining != "" {
		prefix := s.counter.PrefixWithinBudget(remaining, s.MaxTokens)
		if prefix == "" {
			break
		}
		pieces = append(pieces, prefix)
		remaining = remaining[len(prefix):]
	}
	return pieces
}

func (s *Semantic) tailTokens(text string, limit int) string {
	return s.counter.Tail(text, limit)
}

// splitSentences breaks a paragraph into sentences ending in '.', '!', or
// '?' followed by whitespace or end-of-paragraph.
func splitSentences(paragraph string) []string {
	var (
		sentences []string
		builder   strings.Builder
		runes     = []rune(paragraph)
	)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		builder.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
				sentences = append(sentences, builder.String())
				builder.Reset()
			}
		}
	}
	if builder.Len() > 0 {
		sentences = append(sentences, builder.String())
	}
	return sentences
}

var _ rag.TextSplitter = (*Semantic)(nil)
