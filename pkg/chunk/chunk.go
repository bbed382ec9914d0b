// Package chunk splits source files into embedding-sized, token-bounded
// chunks with configurable overlap.
package chunk

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeatlas/codeatlas/pkg/textspan"
)

// DeductSpecialTokens reserves room for the BOS/EOS (or equivalent) tokens
// the embedding model adds around each chunk.
const DeductSpecialTokens = 2

// Token is one tokenizer unit with its byte span in the input text.
type Token struct {
	StartByte int
	EndByte   int

	// Continuation marks a token that continues a sub-word; chunk
	// boundaries avoid splitting immediately before one.
	Continuation bool
}

// Tokenizer converts text into offset-carrying tokens. Implementations are
// process-wide, read-mostly resources constructed once at startup.
type Tokenizer interface {
	Encode(text string) []Token
}

// Chunk is a slice of the source with its full position range.
type Chunk struct {
	Data  string
	Range textspan.TextRange
}

// OverlapStrategy controls where the next chunk starts relative to the end
// of the current one.
type OverlapStrategy struct {
	// Lines, when > 0, steps back that many lines from the end.
	Lines int

	// Partial, when in (0, 1), places the next start at
	// current_end - floor(partial * maxTokens).
	Partial float64
}

// ByLines steps back n lines from the end of each chunk.
func ByLines(n int) OverlapStrategy {
	return OverlapStrategy{Lines: n}
}

// Partial overlaps by the given fraction of maxTokens.
func Partial(p float64) OverlapStrategy {
	return OverlapStrategy{Partial: p}
}

// overlapTokens is how many tokens the next chunk re-covers, counted back
// from the current end.
func (o OverlapStrategy) overlapTokens(src string, tokens []Token, end, budget int) int {
	if o.Lines > 0 {
		// step back o.Lines line breaks from the end to find the next start
		seen := 0
		for i := end - 1; i > 0; i-- {
			if tokenEndsLine(src, tokens, i) {
				seen++
				if seen >= o.Lines {
					return end - i
				}
			}
		}
		return end - 1
	}
	return int(float64(budget) * o.Partial)
}

// ByTokens splits src into chunks of [minTokens, maxTokens) tokens. Each
// chunk is sized so that prefixing it with "pfx\tpath\n" still fits in
// maxTokens-2 tokens. Boundaries prefer, in order: a newline within the last
// quarter of the window, a token that does not continue a sub-word, the hard
// token limit. A trailing remainder under minTokens is dropped.
func ByTokens(src, pfx, path string, tokenizer Tokenizer, minTokens, maxTokens int, strategy OverlapStrategy) ([]Chunk, error) {
	if maxTokens <= DeductSpecialTokens {
		return nil, fmt.Errorf("max tokens %d leaves no room for content", maxTokens)
	}

	prefix := pfx + "\t" + path + "\n"
	budget := maxTokens - DeductSpecialTokens - len(tokenizer.Encode(prefix))
	if budget < 1 {
		return nil, fmt.Errorf("prefix %q exhausts the token budget", prefix)
	}

	tokens := tokenizer.Encode(src)
	if len(tokens) == 0 {
		return nil, nil
	}

	slog.Debug("chunking by tokens",
		"path", path, "tokens", len(tokens), "budget", budget, "min", minTokens)

	var chunks []Chunk
	lastLine, lastByte := 0, 0
	srcBytes := []byte(src)

	start := 0
	for start < len(tokens) {
		end := min(start+budget, len(tokens))

		if end < len(tokens) {
			end = adjustBoundary(src, tokens, start, end, budget)
		}

		if end-start < minTokens && end == len(tokens) {
			// trailing remainder below the minimum is suppressed
			break
		}

		startByte := tokens[start].StartByte
		endByte := tokens[end-1].EndByte

		if endByte > startByte {
			startPoint := textspan.NewPoint(srcBytes, startByte, lastLine, lastByte)
			endPoint := textspan.NewPoint(srcBytes, endByte, startPoint.Line, startPoint.Byte)
			lastLine, lastByte = startPoint.Line, startPoint.Byte

			chunks = append(chunks, Chunk{
				Data:  src[startByte:endByte],
				Range: textspan.TextRange{Start: startPoint, End: endPoint},
			})
		}

		if end >= len(tokens) {
			break
		}

		// overlap per strategy; the effective step is always >= 1 token
		nextStart := end - strategy.overlapTokens(src, tokens, end, maxTokens)
		if nextStart <= start {
			nextStart = start + 1
		}
		start = nextStart
	}

	return chunks, nil
}

// adjustBoundary walks a tentative chunk end back to a friendlier cut point:
// first a newline inside the last quarter of the window, then a
// non-continuation token, finally the hard limit unchanged.
func adjustBoundary(src string, tokens []Token, start, end, budget int) int {
	quarter := max(budget/4, 1)
	lowest := max(end-quarter, start+1)

	for i := end - 1; i >= lowest; i-- {
		if tokenEndsLine(src, tokens, i) {
			return i + 1
		}
	}

	for i := end; i > lowest; i-- {
		if !tokens[i].Continuation {
			return i
		}
	}

	return end
}

// tokenEndsLine reports whether token i contains a newline or is followed by
// one before the next token starts.
func tokenEndsLine(src string, tokens []Token, i int) bool {
	tok := tokens[i]
	if strings.Contains(src[tok.StartByte:tok.EndByte], "\n") {
		return true
	}
	gapEnd := len(src)
	if i+1 < len(tokens) {
		gapEnd = tokens[i+1].StartByte
	}
	return strings.Contains(src[tok.EndByte:gapEnd], "\n")
}
