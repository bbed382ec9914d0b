package textspan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each entry marks the end of a line in a hypothetical document.
func lineEnds() []int {
	return []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
}

func TestLineNumber(t *testing.T) {
	ends := lineEnds()

	tests := []struct {
		name string
		byte int
		want int
	}{
		{"beginning of document", 0, 0},
		{"within first line", 5, 0},
		{"end of first line", 10, 0},
		{"start of second line", 11, 1},
		{"within second line", 15, 1},
		{"exactly at a line ending", 20, 1},
		{"end of fifth line", 50, 4},
		{"beyond last line falls back to zero", 105, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LineNumber(tt.byte, ends))
		})
	}
}

func TestAdjustBytePositions(t *testing.T) {
	ends := lineEnds()

	tests := []struct {
		name                 string
		start, end           int
		wantStart, wantEnd   int
	}{
		{"spanning two lines", 15, 25, 11, 30},
		{"at exact line boundaries", 10, 30, 0, 30},
		{"whole document", 0, 100, 0, 100},
		{"at beginnings of lines", 11, 31, 11, 40},
		{"at ends of lines", 20, 40, 11, 40},
		{"end of document", 95, 100, 91, 100},
		{"first byte of document", 0, 15, 0, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStart, gotEnd := AdjustBytePositions(tt.start, tt.end, ends)
			assert.Equal(t, tt.wantStart, gotStart)
			assert.Equal(t, tt.wantEnd, gotEnd)
		})
	}
}

func TestByteRangeForLines(t *testing.T) {
	ends := lineEnds()

	start, end, err := ByteRangeForLines(ends, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, start)
	assert.Equal(t, 20, end)

	start, end, err = ByteRangeForLines(ends, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 21, start)
	assert.Equal(t, 40, end)

	_, _, err = ByteRangeForLines(ends, 1, 99)
	assert.ErrorIs(t, err, ErrLineOutOfRange)

	_, _, err = ByteRangeForLines(ends, 99, 3)
	assert.ErrorIs(t, err, ErrLineOutOfRange)
}

func TestPluckLines(t *testing.T) {
	src := "line one\nline two\nline three\n"
	ends := LineEndIndices([]byte(src))

	got, err := PluckLines(src, ends, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "line two\n", got)

	got, err = PluckLines(src, ends, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestLineEndRoundTrip(t *testing.T) {
	src := []byte("a\nbb\nccc\n")
	ends := LineEndIndices(src)
	assert.Equal(t, []int{1, 4, 8}, ends)

	raw := EncodeLineEnds(ends)
	assert.Len(t, raw, 12)
	assert.Equal(t, ends, DecodeLineEnds(raw))
}

func TestNewPoint(t *testing.T) {
	src := []byte("fn hello() {\n    \"world\"\n}\n")

	p := NewPoint(src, 17, 0, 0)
	assert.Equal(t, Point{Byte: 17, Line: 1, Column: 4}, p)

	p = NewPoint(src, 0, 0, 0)
	assert.Equal(t, Point{Byte: 0, Line: 0, Column: 0}, p)

	// resuming from a previous point must agree with a cold start
	warm := NewPoint(src, 25, p.Line, p.Byte)
	cold := NewPoint(src, 25, 0, 0)
	assert.Equal(t, cold, warm)
}

func TestRangeContains(t *testing.T) {
	outer := TextRange{Start: Point{Byte: 0}, End: Point{Byte: 50}}
	inner := TextRange{Start: Point{Byte: 10}, End: Point{Byte: 20}}

	assert.True(t, outer.Contains(inner))
	assert.False(t, inner.Contains(outer))
	assert.True(t, outer.ContainsBytes(0, 50))
	assert.False(t, outer.ContainsBytes(0, 51))
	assert.Equal(t, 10, inner.Size())
}
