// Package textnorm turns tutoring text (markdown, LaTeX, inline math) into
// plain sentences a speech synthesizer can read aloud.
package textnorm

import (
	"fmt"
	"strings"
	"unicode"
)

// Language selects the spoken vocabulary.
type Language string

const (
	Auto    Language = "auto"
	Bengali Language = "bn"
	English Language = "en"
)

// bengaliThreshold is the share of Bengali-script runes, over non-whitespace
// runes, at which text is treated as Bengali.
const bengaliThreshold = 0.3

// ParseLanguage accepts auto, bn and en (case-insensitive). Empty means auto.
func ParseLanguage(value string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(value))) {
	case "", Auto:
		return Auto, nil
	case Bengali:
		return Bengali, nil
	case English:
		return English, nil
	default:
		return "", fmt.Errorf("unsupported language %q", value)
	}
}

// DetectLanguage measures the fraction of runes in the Bengali block
// (U+0980–U+09FF) over all non-whitespace runes.
func DetectLanguage(text string) Language {
	var total, bengali int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r >= 0x0980 && r <= 0x09FF {
			bengali++
		}
	}
	if total == 0 {
		return English
	}
	if float64(bengali)/float64(total) >= bengaliThreshold {
		return Bengali
	}
	return English
}

func resolve(text string, lang Language) Language {
	switch lang {
	case Bengali, English:
		return lang
	default:
		return DetectLanguage(text)
	}
}
