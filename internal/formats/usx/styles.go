package usx

import "strings"

// ignoredElements are structural elements that carry no reading text. They
// are skipped together with everything inside them.
var ignoredElements = map[string]bool{
	"book":     true,
	"table":    true,
	"figure":   true,
	"sidebar":  true,
	"optbreak": true,
	"ms":       true,
	"periph":   true,
}

// ignoredParaStyles are paragraph styles for introductions, running heads,
// tables of contents, titles and remarks. Section headings (s, s1-s4, r, d,
// sp, ...) are not listed and are kept.
var ignoredParaStyles = map[string]bool{
	"h": true, "h1": true, "h2": true, "h3": true,
	"toc1": true, "toc2": true, "toc3": true,
	"toca1": true, "toca2": true, "toca3": true,
	"ide": true, "rem": true, "sts": true, "restore": true, "usfm": true,
	"cl": true, "cp": true, "cd": true, "lit": true,
	"mr": true, "iot": true, "ib": true, "iex": true, "ie": true,
}

// ignoredParaPrefixes cover numbered style families (mt1, mt2, is1, ili2, ...).
var ignoredParaPrefixes = []string{
	"mt", "mte", "imt", "imte", "is", "ip", "im", "iq", "ili", "io",
}

// isIgnoredParaStyle reports whether a paragraph with this style is dropped.
func isIgnoredParaStyle(style string) bool {
	if ignoredParaStyles[style] {
		return true
	}
	for _, prefix := range ignoredParaPrefixes {
		if !strings.HasPrefix(style, prefix) {
			continue
		}
		rest := style[len(prefix):]
		if rest == "" || isDigits(rest) {
			return true
		}
		// ipi, ipq, ipr, imi, imq, iqt style variants
		if len(rest) == 1 && prefix != "mt" && prefix != "mte" && prefix != "is" {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
