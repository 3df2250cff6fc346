package instrument

import (
	"encoding/json"
	"strings"
)

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

type segment struct {
	genLine, genCol int
	srcLine, srcCol int
}

// sourceMap collects generated-to-original position pairs and renders them
// as a version 3 source map with a single source.
type sourceMap struct {
	file     string
	source   string
	content  string
	segments []segment
}

func (m *sourceMap) add(genLine, genCol, srcLine, srcCol int) {
	if n := len(m.segments); n > 0 {
		last := m.segments[n-1]
		if last.genLine == genLine && last.genCol == genCol {
			m.segments[n-1] = segment{genLine, genCol, srcLine, srcCol}
			return
		}
	}
	m.segments = append(m.segments, segment{genLine, genCol, srcLine, srcCol})
}

func (m *sourceMap) mappings() string {
	var b strings.Builder
	line, prevCol, prevSrcLine, prevSrcCol := 0, 0, 0, 0
	first := true
	for _, s := range m.segments {
		for line < s.genLine {
			b.WriteByte(';')
			line++
			prevCol = 0
			first = true
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		writeVLQ(&b, s.genCol-prevCol)
		writeVLQ(&b, 0) // source index
		writeVLQ(&b, s.srcLine-prevSrcLine)
		writeVLQ(&b, s.srcCol-prevSrcCol)
		prevCol, prevSrcLine, prevSrcCol = s.genCol, s.srcLine, s.srcCol
	}
	return b.String()
}

func (m *sourceMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Version        int      `json:"version"`
		File           string   `json:"file"`
		Sources        []string `json:"sources"`
		SourcesContent []string `json:"sourcesContent"`
		Names          []string `json:"names"`
		Mappings       string   `json:"mappings"`
	}{
		Version:        3,
		File:           m.file,
		Sources:        []string{m.source},
		SourcesContent: []string{m.content},
		Names:          []string{},
		Mappings:       m.mappings(),
	})
}

func writeVLQ(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u > 0 {
			digit |= 32
		}
		b.WriteByte(base64Digits[digit])
		if u == 0 {
			return
		}
	}
}

// genWriter accumulates generated text while tracking the 0-based line and
// column of the write position.
type genWriter struct {
	b         strings.Builder
	line, col int
}

func (w *genWriter) WriteString(s string) {
	w.b.WriteString(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		w.line += strings.Count(s, "\n")
		w.col = len(s) - i - 1
	} else {
		w.col += len(s)
	}
}

func (w *genWriter) String() string {
	return w.b.String()
}
