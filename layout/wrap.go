package layout

import (
	"strings"
	"unicode/utf8"
)

// WrapByAverageCharWidth splits text into lines of at most N runes, where N is
// maxWidth divided by the average rune width of text measured at textWidth.
//
// This is an estimate: proportional fonts make some lines wider than maxWidth
// and nothing re-measures the result here. Words longer than N are broken.
func WrapByAverageCharWidth(text string, textWidth, maxWidth int) []string {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return nil
	}
	avg := textWidth / runes
	if avg < 1 {
		avg = 1
	}
	return WrapRunes(text, CharsPerLine(avg, maxWidth))
}

func CharsPerLine(avgCharWidth, maxWidth int) int {
	if avgCharWidth < 1 {
		avgCharWidth = 1
	}
	n := maxWidth / avgCharWidth
	if n < 1 {
		n = 1
	}
	return n
}

// WrapRunes greedily fills lines with whole words up to width runes.
func WrapRunes(text string, width int) []string {
	var lines []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, string(cur))
			cur = cur[:0]
		}
	}
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		switch {
		case len(cur) == 0 && len(w) <= width:
			cur = append(cur, w...)
		case len(cur) > 0 && len(cur)+1+len(w) <= width:
			cur = append(cur, ' ')
			cur = append(cur, w...)
		default:
			flush()
			for len(w) > width {
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}
			cur = append(cur, w...)
		}
	}
	flush()
	return lines
}
