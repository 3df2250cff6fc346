package instrument

import (
	"sort"
	"strings"
)

// lineIndex resolves byte offsets in a source text into 0-based line and
// column numbers. Line starts are scanned lazily, so offsets requested in
// increasing order cost one pass over the text.
type lineIndex struct {
	src string

	lineOffsets       []int
	lastScannedOffset int
}

func newLineIndex(src string) *lineIndex {
	return &lineIndex{src: src}
}

func (f *lineIndex) position(offset int) (line, col int) {
	if offset > f.lastScannedOffset {
		line = f.scanTo(offset)
	} else {
		line = sort.Search(len(f.lineOffsets), func(x int) bool { return f.lineOffsets[x] > offset }) - 1
	}

	var lineStart int
	if line >= 0 {
		lineStart = f.lineOffsets[line]
	}
	// lineOffsets holds the starts of the second and later lines.
	return line + 1, offset - lineStart
}

func (f *lineIndex) scanTo(offset int) int {
	o := f.lastScannedOffset
	for o < offset {
		p := strings.IndexByte(f.src[o:], '\n')
		if p == -1 {
			f.lastScannedOffset = len(f.src)
			return len(f.lineOffsets) - 1
		}
		o = o + p + 1
		f.lineOffsets = append(f.lineOffsets, o)
	}
	f.lastScannedOffset = o

	if o == offset {
		return len(f.lineOffsets) - 1
	}

	return len(f.lineOffsets) - 2
}
