package IO

import "strings"

// Word-level tokenization for the demos. Lowercases, drops non-ASCII
// and punctuation, splits on whitespace.
func TokenizeWords(s string) []string {
	b := make([]rune, 0, len(s))
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
			b = append(b, c+32)
		case c >= 'a' && c <= 'z':
			b = append(b, c)
		case c >= '0' && c <= '9':
			b = append(b, c)
		case c == '\'':
			// keep apostrophes inside contractions
			b = append(b, c)
		default:
			b = append(b, ' ')
		}
	}
	return strings.Fields(string(b))
}
