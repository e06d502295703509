package textnorm

import (
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`[0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]+)?|[0-9]+(?:\.[0-9]+)?`)

// maxCardinalDigits is the longest integer read as a cardinal; longer runs
// (phone numbers, ids) are read digit by digit.
const maxCardinalDigits = 12

var (
	ones = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}
	tens   = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
	scales = []struct {
		value uint64
		name  string
	}{
		{1_000_000_000, "billion"},
		{1_000_000, "million"},
		{1_000, "thousand"},
	}
	bengaliDigits = []rune("০১২৩৪৫৬৭৮৯")
)

func speakNumbers(text string, lang Language) string {
	return numberPattern.ReplaceAllStringFunc(text, func(m string) string {
		if lang == Bengali {
			return toBengaliDigits(m)
		}
		return " " + englishNumber(m) + " "
	})
}

func englishNumber(literal string) string {
	literal = strings.ReplaceAll(literal, ",", "")
	whole, frac, hasFrac := strings.Cut(literal, ".")

	var out string
	if len(whole) > maxCardinalDigits || (len(whole) > 1 && whole[0] == '0') {
		out = digitWords(whole)
	} else {
		n, err := strconv.ParseUint(whole, 10, 64)
		if err != nil {
			out = digitWords(whole)
		} else {
			out = cardinal(n)
		}
	}
	if hasFrac {
		out += " point " + digitWords(frac)
	}
	return out
}

func cardinal(n uint64) string {
	if n < 20 {
		return ones[n]
	}
	var parts []string
	for _, scale := range scales {
		if n >= scale.value {
			parts = append(parts, cardinal(n/scale.value), scale.name)
			n %= scale.value
		}
	}
	if n >= 100 {
		parts = append(parts, ones[n/100], "hundred")
		n %= 100
	}
	switch {
	case n == 0:
	case n < 20:
		parts = append(parts, ones[n])
	case n%10 == 0:
		parts = append(parts, tens[n/10])
	default:
		parts = append(parts, tens[n/10]+"-"+ones[n%10])
	}
	return strings.Join(parts, " ")
}

func digitWords(digits string) string {
	words := make([]string, 0, len(digits))
	for _, d := range digits {
		if d >= '0' && d <= '9' {
			words = append(words, ones[d-'0'])
		}
	}
	return strings.Join(words, " ")
}

func toBengaliDigits(literal string) string {
	var b strings.Builder
	for _, r := range literal {
		if r >= '0' && r <= '9' {
			b.WriteRune(bengaliDigits[r-'0'])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
