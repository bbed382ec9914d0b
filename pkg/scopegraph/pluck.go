package scopegraph

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeatlas/codeatlas/pkg/textspan"
)

// ExtractionConfig guides how far ExpandScope widens a byte range.
type ExtractionConfig struct {
	// CodeByteExpansionRange is the number of bytes added around the span
	// when no graph node matches, or past the end when the match spans fewer
	// than MinLinesToReturn lines.
	CodeByteExpansionRange int

	// MinLinesToReturn is the minimum extraction height in lines; smaller
	// matches are padded with trailing context.
	MinLinesToReturn int

	// MaxLinesLimit, when set, clamps the extraction height.
	MaxLinesLimit *int
}

// ExtractedContent is a widened code span with its location metadata and, if
// a graph node anchored the extraction, a hierarchical scope map.
type ExtractedContent struct {
	Path      string  `json:"path"`
	Content   string  `json:"content"`
	StartByte int     `json:"start_byte"`
	EndByte   int     `json:"end_byte"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	ScopeMap  *string `json:"scope_map,omitempty"`
}

// ExpandScope widens [startByte, endByte) into the smallest semantically
// meaningful code chunk.
//
// When a graph node encompasses the span, the extraction follows the node's
// body (via ValueOfDefinition), snapped to whole lines and padded or clamped
// per cfg, and a scope map for the node is attached. When no node matches,
// the span is expanded by cfg.CodeByteExpansionRange on both sides and
// aligned to line boundaries; the scope map is nil.
func (g *ScopeGraph) ExpandScope(path string, startByte, endByte int, content string, lineEnds []int, cfg ExtractionConfig) ExtractedContent {
	slog.Debug("expanding scope", "path", path, "start", startByte, "end", endByte)

	nodeIdx, found := g.SmallestEncompassingNode(startByte, endByte)

	newStart := startByte
	newEnd := endByte

	if found {
		target := nodeIdx
		if v, ok := g.ValueOfDefinition(nodeIdx); ok {
			target = v
		}
		rng := g.Nodes[target].Range

		// Snap the start to the beginning of its line.
		newStart = rng.Start.Byte - rng.Start.Column

		newEnd = rng.End.Byte
		if rng.End.Line < len(lineEnds) {
			newEnd = lineEnds[rng.End.Line]
		}

		startingLine := lineNumberClamped(newStart, lineEnds)
		endingLine := lineNumberClamped(newEnd, lineEnds)
		totalLines := endingLine - startingLine

		if totalLines < cfg.MinLinesToReturn {
			newEnd = min(newEnd+cfg.CodeByteExpansionRange, len(content))
		} else if cfg.MaxLinesLimit != nil && totalLines > *cfg.MaxLinesLimit {
			if clamped := startingLine + *cfg.MaxLinesLimit; clamped < len(lineEnds) {
				newEnd = lineEnds[clamped]
			}
		}
	} else {
		slog.Debug("no encompassing node", "path", path)
		newStart = max(0, startByte-cfg.CodeByteExpansionRange)
		newEnd = min(endByte+cfg.CodeByteExpansionRange, len(content))
		newStart, newEnd = textspan.AdjustBytePositions(newStart, newEnd, lineEnds)
	}

	if newStart > len(content) {
		newStart = len(content)
	}
	if newEnd > len(content) {
		newEnd = len(content)
	}
	if newStart > newEnd {
		newStart = newEnd
	}

	startingLine := lineNumberClamped(newStart, lineEnds)
	endingLine := lineNumberClamped(newEnd, lineEnds)

	var scopeMap *string
	if found {
		m := g.ScopeMap(nodeIdx, content, lineEnds)
		scopeMap = &m
	}

	return ExtractedContent{
		Path:      path,
		Content:   content[newStart:newEnd],
		StartByte: newStart,
		EndByte:   newEnd,
		StartLine: startingLine,
		EndLine:   endingLine,
		ScopeMap:  scopeMap,
	}
}

// lineNumberClamped is LineNumber with the out-of-range ambiguity resolved
// for extraction: a byte past the final newline belongs to the last line,
// not line zero. textspan.LineNumber keeps the raw convention for callers
// that validate offsets themselves.
func lineNumberClamped(byteOffset int, lineEnds []int) int {
	if len(lineEnds) > 0 && byteOffset > lineEnds[len(lineEnds)-1] {
		return len(lineEnds) - 1
	}
	return textspan.LineNumber(byteOffset, lineEnds)
}

// codeLine extracts the full source line a node starts on, together with its
// 1-based line number.
func (g *ScopeGraph) codeLine(idx NodeIndex, content string, lineEnds []int) (string, int) {
	rng := g.Nodes[idx].Range

	lineStart := rng.Start.Byte - rng.Start.Column
	lineEnd := rng.End.Byte
	if rng.Start.Line < len(lineEnds) {
		lineEnd = lineEnds[rng.Start.Line]
	}
	if lineStart < 0 {
		lineStart = 0
	}
	if lineEnd > len(content) {
		lineEnd = len(content)
	}
	if lineStart > lineEnd {
		lineStart = lineEnd
	}

	return content[lineStart:lineEnd], rng.Start.Line + 1
}

// ScopeMap renders the ancestor chain of a node as an indented,
// line-numbered listing. Gaps between line numbers show as ".." ellipsis
// lines, and the root scope always leads with a "<Root Scope Line number 1>"
// line. The exact format is a contract: the LLM consumes it verbatim.
func (g *ScopeGraph) ScopeMap(start NodeIndex, content string, lineEnds []int) string {
	current := start
	var blocks []string
	var depths []int
	depth := 0
	var lastLineNumber *int

	for !g.IsTopLevel(current) {
		line, lineNumber := g.codeLine(current, content, lineEnds)

		if lastLineNumber != nil && lineNumber+1 < *lastLineNumber {
			blocks = append(blocks, "..")
			depths = append(depths, depth)
		}

		if lastLineNumber == nil || *lastLineNumber != lineNumber {
			blocks = append(blocks, fmt.Sprintf("<Line number %d> %s", lineNumber, line))
			depths = append(depths, depth)
			n := lineNumber
			lastLineNumber = &n
		}

		// Definitions and imports join the chain through their scope.
		parent, ok := g.ParentScope(current)
		for _, kind := range []EdgeKind{DefToScope, ImportToScope} {
			if !ok {
				parent, ok = g.target(current, kind)
			}
		}
		if !ok {
			break
		}
		current = parent
		depth++
	}

	// Each line is indented one level per scope walked above it.
	for i := range blocks {
		blocks[i] = strings.Repeat("    ", depth-depths[i]) + blocks[i]
	}

	rootEnd := len(content)
	if len(lineEnds) > 0 && lineEnds[0] < rootEnd {
		rootEnd = lineEnds[0]
	}
	blocks = append(blocks, fmt.Sprintf("<Root Scope Line number 1> %s", content[:rootEnd]))

	// Traversal was bottom-up; present top-down.
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return strings.Join(blocks, "\n")
}
