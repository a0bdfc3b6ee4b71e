package render

import "unicode"

// unit is a piece of text drawn with a single DrawString call.
type unit struct {
	text string
}

type runClass int

const (
	classNeutral runClass = iota
	classRTL
	classLTR
)

func classify(r rune) runClass {
	switch {
	case unicode.IsDigit(r):
		// Digits, including Arabic-Indic ones, always read left to right.
		return classLTR
	case isArabicRune(r):
		return classRTL
	case unicode.IsLetter(r):
		return classLTR
	default:
		return classNeutral
	}
}

var mirrored = map[rune]rune{
	'(': ')', ')': '(',
	'[': ']', ']': '[',
	'{': '}', '}': '{',
	'<': '>', '>': '<',
	'«': '»', '»': '«',
}

// rtlUnits splits shaped right-to-left text into draw units in the order they
// are placed from the right edge leftward.
//
// Runs of Arabic text are split per glyph cluster (a letter plus any
// combining marks) so each cluster can be stepped leftward. Embedded runs of
// Latin letters and digits stay whole and keep their internal order. Neutral
// characters take the direction of their surroundings: they stay inside a
// left-to-right run only when both neighbours are left-to-right.
func rtlUnits(shaped string) []unit {
	runes := []rune(shaped)
	classes := make([]runClass, len(runes))
	for i, r := range runes {
		classes[i] = classify(r)
	}

	// Resolve neutrals against the nearest strong neighbours.
	for i := range runes {
		if classes[i] != classNeutral {
			continue
		}
		before, after := classRTL, classRTL
		for j := i - 1; j >= 0; j-- {
			if classes[j] != classNeutral {
				before = classes[j]
				break
			}
		}
		for j := i + 1; j < len(runes); j++ {
			if classes[j] != classNeutral {
				after = classes[j]
				break
			}
		}
		if before == classLTR && after == classLTR {
			classes[i] = classLTR
		} else {
			classes[i] = classRTL
		}
	}

	units := make([]unit, 0, len(runes))
	for i := 0; i < len(runes); {
		if classes[i] == classLTR {
			j := i
			for j < len(runes) && classes[j] == classLTR {
				j++
			}
			units = append(units, unit{text: string(runes[i:j])})
			i = j
			continue
		}

		r := runes[i]
		if m, ok := mirrored[r]; ok {
			r = m
		}
		cluster := []rune{r}
		i++
		for i < len(runes) && classes[i] == classRTL && isTransparent(runes[i]) {
			cluster = append(cluster, runes[i])
			i++
		}
		units = append(units, unit{text: string(cluster)})
	}
	return units
}
