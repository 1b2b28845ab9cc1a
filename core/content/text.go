package content

import "strings"

// PlainText concatenates every Text leaf in document order. Reference labels,
// verse markers and attributes are not part of the reading text.
func PlainText(nodes ...Content) string {
	var sb strings.Builder
	Walk(nodes, func(n Content) bool {
		if t, ok := n.(Text); ok {
			sb.WriteString(t.Text)
		}
		return true
	})
	return sb.String()
}

// VerseNumbers returns the verse markers found in the tree, in order.
func VerseNumbers(nodes []Content) []int {
	var out []int
	Walk(nodes, func(n Content) bool {
		if v, ok := n.(Verse); ok {
			out = append(out, v.Number)
		}
		return true
	})
	return out
}
