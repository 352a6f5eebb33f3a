package digest

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker ends a line that alone exceeds the chunk limit.
const TruncationMarker = "…"

// Chunk greedily packs lines, joined by newlines, into blocks of at most
// limit runes. Line order is kept. A line that cannot fit even on its own is
// cut to limit runes ending in TruncationMarker.
func Chunk(lines []string, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	var (
		chunks []string
		cur    []string
		curLen int
	)
	for _, line := range lines {
		line = truncate(line, limit)
		n := utf8.RuneCountInString(line)
		if len(cur) > 0 && curLen+1+n > limit {
			chunks = append(chunks, strings.Join(cur, "\n"))
			cur, curLen = nil, 0
		}
		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, line)
		curLen += n
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, "\n"))
	}
	return chunks
}

func truncate(line string, limit int) string {
	if utf8.RuneCountInString(line) <= limit {
		return line
	}
	keep := limit - utf8.RuneCountInString(TruncationMarker)
	if keep < 0 {
		keep = 0
	}
	var b strings.Builder
	for i, r := range []rune(line) {
		if i >= keep {
			break
		}
		b.WriteRune(r)
	}
	b.WriteString(TruncationMarker)
	return b.String()
}
