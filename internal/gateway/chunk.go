package gateway

import "strings"

// Chunk splits text into pieces of at most limit bytes, preferring paragraph
// boundaries, then line boundaries, then a hard cut. Pieces are trimmed and
// never empty; a non-positive limit returns the text unsplit.
func Chunk(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	rest := text
	for len(rest) > limit {
		cut := splitPoint(rest, limit)
		piece := strings.TrimSpace(rest[:cut])
		if piece != "" {
			chunks = append(chunks, piece)
		}
		rest = strings.TrimSpace(rest[cut:])
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// splitPoint finds where to cut the next chunk: the last paragraph break
// within the limit, else the last newline, else the limit itself (avoiding a
// cut inside a UTF-8 sequence).
func splitPoint(text string, limit int) int {
	window := text[:limit]
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx
	}
	cut := limit
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
