package indexer

import (
	"strings"

	"github.com/codescope/codescope/pkg/types"
)

// maxChunkLines caps the size of a single chunk; oversized declarations
// and symbol-free files are split into windows of this size.
const maxChunkLines = 120

// chunk is one embeddable span of source, stored in the chunks table.
type chunk struct {
	Content   string
	StartLine int
	EndLine   int
}

// chunkSource splits Go source into chunks, one per top-level symbol. The
// symbol positions come from the parse result so a file with syntax errors
// still chunks whatever was extracted. Files without symbols fall back to
// fixed-size windows.
func chunkSource(src []byte, symbols []types.Symbol) []chunk {
	lines := strings.Split(string(src), "\n")
	if len(lines) == 0 {
		return nil
	}

	var chunks []chunk
	seen := make(map[[2]int]bool)
	for i := range symbols {
		sym := &symbols[i]
		if sym.Start.Line <= 0 || sym.End.Line <= 0 || sym.Start.Line > len(lines) {
			continue
		}
		end := sym.End.Line
		if end > len(lines) {
			end = len(lines)
		}
		// Grouped const and var declarations report the same span for
		// every name; one chunk covers them all.
		span := [2]int{sym.Start.Line, end}
		if seen[span] {
			continue
		}
		seen[span] = true

		for _, c := range window(lines, sym.Start.Line, end) {
			chunks = append(chunks, c)
		}
	}

	if len(chunks) == 0 {
		chunks = window(lines, 1, len(lines))
	}
	return chunks
}

// window slices lines[start..end] (1-based, inclusive) into chunks of at
// most maxChunkLines, dropping all-blank spans.
func window(lines []string, start, end int) []chunk {
	var out []chunk
	for lo := start; lo <= end; lo += maxChunkLines {
		hi := lo + maxChunkLines - 1
		if hi > end {
			hi = end
		}
		content := strings.Join(lines[lo-1:hi], "\n")
		if strings.TrimSpace(content) == "" {
			continue
		}
		out = append(out, chunk{Content: content, StartLine: lo, EndLine: hi})
	}
	return out
}
