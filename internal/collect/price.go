package collect

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// brlPattern matches Brazilian-formatted prices: an R$ marker, optional dot
// thousands separators, and a mandatory decimal comma ("R$ 1.234,56").
var brlPattern = regexp.MustCompile(`R\$\s*([0-9]{1,3}(?:\.[0-9]{3})*|[0-9]+),([0-9]{2})`)

// loosePattern matches a bare decimal with comma or dot and exactly two
// cent digits ("12,34" or "12.34"), bounded so it does not bite into a
// thousands-separated number.
var loosePattern = regexp.MustCompile(`(?:^|[^0-9.,])([0-9]{1,6})([.,])([0-9]{2})(?:[^0-9]|$)`)

// FindPrice locates the first parseable price in text and returns the
// matched token, the value rounded to two decimals, and whether a price was
// found. Currency-marked values win over bare numbers; unparseable text is
// skipped, never an error.
func FindPrice(text string) (string, float64, bool) {
	if m := brlPattern.FindStringSubmatch(text); m != nil {
		whole := strings.ReplaceAll(m[1], ".", "")
		if v, err := strconv.ParseFloat(whole+"."+m[2], 64); err == nil {
			return m[0], Round2(v), true
		}
	}
	if m := loosePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1]+"."+m[3], 64); err == nil {
			return m[1] + m[2] + m[3], Round2(v), true
		}
	}
	return "", 0, false
}

// ParsePrice is FindPrice without the matched token.
func ParsePrice(text string) (float64, bool) {
	_, v, ok := FindPrice(text)
	return v, ok
}

// Round2 rounds a monetary value to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
