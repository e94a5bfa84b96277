// Package textchunk splits raw course material into bounded-size,
// sentence-aligned segments for indexing. The splitter never breaks inside a
// sentence: a single sentence longer than the requested size is emitted as
// its own oversized chunk, trading a strict size bound for semantic
// coherence of the retrieved snippets.
package textchunk

import (
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// sentenceBoundary matches the whitespace after sentence-ending punctuation.
// The lookbehind needs regexp2; Go's RE2 engine has no lookaround.
var sentenceBoundary = regexp2.MustCompile(`(?<=[.!?])\s+`, regexp2.None)

// Split divides text into chunks of at most maxChunkSize runes, where each
// chunk is a run of whole sentences. Sentences are accumulated greedily; when
// appending the next sentence would exceed maxChunkSize and the current chunk
// is non-empty, the chunk is flushed and the sentence starts a new one. A
// trailing non-empty chunk is always flushed.
//
// Empty or all-whitespace input yields an empty slice. The function is pure
// and deterministic.
func Split(text string, maxChunkSize int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	var current string
	for _, sentence := range splitSentences(text) {
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(sentence) > maxChunkSize && current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
			current = sentence
			continue
		}
		if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
	}
	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks
}

// splitSentences cuts text at sentence boundaries, keeping the terminating
// punctuation with the sentence it ends. regexp2 match positions are rune
// offsets, so the walk happens over a rune slice.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	m, _ := sentenceBoundary.FindRunesMatch(runes)
	for m != nil {
		out = append(out, string(runes[start:m.Index]))
		start = m.Index + m.Length
		m, _ = sentenceBoundary.FindNextMatch(m)
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
