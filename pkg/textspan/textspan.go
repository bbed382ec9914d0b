// Package textspan provides byte-accurate positions and ranges within a
// source buffer, plus helpers for converting between byte offsets and line
// numbers using a precomputed line-end index.
package textspan

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Point is a position in a source buffer, tracked redundantly as a byte
// offset, a 0-based line and a 0-based column.
type Point struct {
	Byte   int `json:"byte"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// NewPoint computes the line and column for the given byte offset. lastLine
// and lastByte may carry the result of a previous call on an earlier offset
// to avoid rescanning the prefix; pass zeros when in doubt.
func NewPoint(src []byte, byteOffset, lastLine, lastByte int) Point {
	line := lastLine
	for _, b := range src[lastByte:byteOffset] {
		if b == '\n' {
			line++
		}
	}
	column := byteOffset
	for i := byteOffset - 1; i >= 0; i-- {
		if src[i] == '\n' {
			column = byteOffset - i - 1
			break
		}
	}
	return Point{Byte: byteOffset, Line: line, Column: column}
}

// TextRange is a half-open byte span [Start.Byte, End.Byte). Ranges are
// immutable once constructed.
type TextRange struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Contains reports whether r fully contains other.
func (r TextRange) Contains(other TextRange) bool {
	return r.Start.Byte <= other.Start.Byte && other.End.Byte <= r.End.Byte
}

// ContainsBytes reports whether the byte span [start, end) lies within r.
func (r TextRange) ContainsBytes(start, end int) bool {
	return r.Start.Byte <= start && end <= r.End.Byte
}

// Size is the length of the span in bytes.
func (r TextRange) Size() int {
	return r.End.Byte - r.Start.Byte
}

func (r TextRange) String() string {
	return fmt.Sprintf("%d..%d", r.Start.Byte, r.End.Byte)
}

// LineNumber returns the 0-based line containing the given byte offset: the
// smallest index i such that lineEnds[i] >= byte.
//
// By convention a byte offset of 0 is line 0, and any offset beyond the last
// line end also maps to 0. Callers that need to distinguish the two must
// validate the offset against the document length first.
func LineNumber(byteOffset int, lineEnds []int) int {
	if byteOffset == 0 {
		return 0
	}
	for i, end := range lineEnds {
		if end >= byteOffset {
			return i
		}
	}
	return 0
}

// AdjustBytePositions widens [start, end) so it begins at the first character
// of its starting line and finishes at the terminating newline of its ending
// line.
func AdjustBytePositions(start, end int, lineEnds []int) (int, int) {
	endingLine := LineNumber(end, lineEnds)
	startingLine := LineNumber(start, lineEnds)

	adjustedStart := 0
	if startingLine > 0 && startingLine-1 < len(lineEnds) {
		adjustedStart = lineEnds[startingLine-1] + 1
	}

	adjustedEnd := end
	if endingLine < len(lineEnds) {
		adjustedEnd = lineEnds[endingLine]
	}

	return adjustedStart, adjustedEnd
}

var (
	// ErrLineOutOfRange reports a 1-based line number outside the document.
	ErrLineOutOfRange = errors.New("line number out of range")
	// ErrInvertedLineRange reports a start line after the end line.
	ErrInvertedLineRange = errors.New("start line greater than end line")
)

// ByteRangeForLines converts a 1-based inclusive line range into the byte
// range covering those lines. A zero startLine means the beginning of the
// document; a zero endLine means the last line.
func ByteRangeForLines(lineEnds []int, startLine, endLine int) (int, int, error) {
	var byteStart int
	switch {
	case startLine <= 1:
		byteStart = 0
	default:
		if startLine-2 >= len(lineEnds) {
			return 0, 0, fmt.Errorf("start line %d: %w", startLine, ErrLineOutOfRange)
		}
		byteStart = lineEnds[startLine-2] + 1
	}

	lineIdx := len(lineEnds) - 1
	if endLine > 0 {
		lineIdx = endLine - 1
	}
	if lineIdx >= len(lineEnds) {
		return 0, 0, fmt.Errorf("end line %d: %w", endLine, ErrLineOutOfRange)
	}
	byteEnd := lineEnds[lineIdx]

	if byteStart > byteEnd {
		return 0, 0, ErrInvertedLineRange
	}
	return byteStart, byteEnd, nil
}

// PluckLines extracts the text covering the given 1-based inclusive line
// range.
func PluckLines(text string, lineEnds []int, startLine, endLine int) (string, error) {
	start, end, err := ByteRangeForLines(lineEnds, startLine, endLine)
	if err != nil {
		return "", err
	}
	if end+1 <= len(text) {
		end++
	}
	return text[start:end], nil
}

// LineEndIndices returns the byte offset of every newline in src. Documents
// persist this as little-endian u32 bytes; see EncodeLineEnds.
func LineEndIndices(src []byte) []int {
	var ends []int
	for i, b := range src {
		if b == '\n' {
			ends = append(ends, i)
		}
	}
	return ends
}

// EncodeLineEnds packs line end indices as little-endian u32 bytes, the
// storage format used by the full-text store.
func EncodeLineEnds(ends []int) []byte {
	out := make([]byte, 0, len(ends)*4)
	for _, e := range ends {
		out = binary.LittleEndian.AppendUint32(out, uint32(e))
	}
	return out
}

// DecodeLineEnds unpacks little-endian u32 bytes back into indices. Trailing
// partial chunks are ignored.
func DecodeLineEnds(raw []byte) []int {
	ends := make([]int, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		ends = append(ends, int(binary.LittleEndian.Uint32(raw[i:i+4])))
	}
	return ends
}
