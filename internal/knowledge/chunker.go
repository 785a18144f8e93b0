package knowledge

import "strings"

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk splits text into windows of at most size characters that overlap by
// overlap characters. A window is shortened to end just after the last '.'
// or newline when that boundary falls past its midpoint. Text that fits in
// one window is returned whole.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end < len(runes) {
			if bp := lastBoundary(runes, start, end); bp > start+size/2 {
				end = bp + 1
			}
		} else {
			end = len(runes)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastBoundary returns the index of the last '.' or '\n' in runes[start:end+1],
// or -1.
func lastBoundary(runes []rune, start, end int) int {
	if end >= len(runes) {
		end = len(runes) - 1
	}
	for i := end; i >= start; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
