package textnorm

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Result is the normalized text together with the language it was spoken in.
type Result struct {
	Text     string
	Language Language
}

// maxPasses bounds the nested-structure rewrites; each pass removes one
// level of braces so real input settles long before this.
const maxPasses = 8

var (
	displayDollar  = regexp.MustCompile(`(?s)\$\$(.+?)\$\$`)
	displayBracket = regexp.MustCompile(`(?s)\\\[(.+?)\\\]`)
	inlineParen    = regexp.MustCompile(`(?s)\\\((.+?)\\\)`)
	inlineDollar   = regexp.MustCompile(`\$([^$\s](?:[^$\n]*[^$\s])?)\$`)

	fracPattern     = regexp.MustCompile(`\\[dt]?frac\s*\{([^{}]*)\}\s*\{([^{}]*)\}`)
	rootPattern     = regexp.MustCompile(`\\sqrt\s*\[([^\]]*)\]\s*\{([^{}]*)\}`)
	sqrtPattern     = regexp.MustCompile(`\\sqrt\s*\{([^{}]*)\}`)
	superPattern    = regexp.MustCompile(`\^\s*(?:\{([^{}]*)\}|([0-9]+|[A-Za-z]|\\[a-zA-Z]+))`)
	subPattern      = regexp.MustCompile(`_\s*(?:\{([^{}]*)\}|([0-9]+|[A-Za-z]))`)
	macroPattern    = regexp.MustCompile(`\\([a-zA-Z]+)`)
	commandWithArg  = regexp.MustCompile(`\\[a-zA-Z]+\*?\s*\{([^{}]*)\}`)
	bareCommand     = regexp.MustCompile(`\\[a-zA-Z]+\*?`)
	escapedChar     = regexp.MustCompile(`\\[^a-zA-Z\s]`)
	mathGrouping    = strings.NewReplacer("(", " ", ")", " ", "[", " ", "]", " ", "{", " ", "}", " ", ",", ", ")
	leftoverSymbols = strings.NewReplacer("$", " ", "^", " ", "{", " ", "}", " ", "\\", " ", "*", " ", "#", " ", "~", " ", "|", " ", "_", " ", "`", " ")

	codeFence  = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*\\n?(.*?)```")
	hrule      = regexp.MustCompile(`(?m)^[ \t]*(?:-[ \t]*-[ \t]*-[- \t]*|\*[ \t]*\*[ \t]*\*[* \t]*|_[ \t]*_[ \t]*_[_ \t]*)$`)
	header     = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]*`)
	blockquote = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	bullet     = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|[0-9]+[.)])[ \t]+`)
	image      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	link       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	boldStar   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnder  = regexp.MustCompile(`__(.+?)__`)
	italicStar = regexp.MustCompile(`\*([^*\n]+)\*`)
	strike     = regexp.MustCompile(`~~(.+?)~~`)
	inlineCode = regexp.MustCompile("`([^`\\n]+)`")

	dashRun      = regexp.MustCompile(`\s*(?:-{2,}|[—–])\s*`)
	ellipsis     = regexp.MustCompile(`\s*(?:\.{3,}|…)\s*`)
	bangRun      = regexp.MustCompile(`([!?])[!?]+`)
	commaRun     = regexp.MustCompile(`,(?:\s*,)+`)
	periodRun    = regexp.MustCompile(`\.(?:\s*\.)+`)
	softBeforeFS = regexp.MustCompile(`[,;:]\s*([.!?।])`)
	spaceBefore  = regexp.MustCompile(`\s+([,.!?;:।])`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Normalize is Process without the detected language.
func Normalize(text string, lang Language) string {
	return Process(text, lang).Text
}

// Process converts text into speakable plain sentences. Auto resolves the
// language from the input script. Every input yields a result.
func Process(text string, lang Language) Result {
	text = norm.NFC.String(strings.ToValidUTF8(text, ""))
	lang = resolve(text, lang)
	vocab := vocabularies[lang]

	text = convertMathSegments(text, vocab)

	text = vocab.symbols.Replace(text)
	text = rewriteStructures(text, vocab, false)
	text = replaceMacros(text, vocab)
	text = stripLatex(text)

	text = stripMarkdown(text)
	text = vocab.prose.Replace(text)
	text = speakNumbers(text, lang)
	text = leftoverSymbols.Replace(text)
	text = pace(text)

	return Result{Text: text, Language: lang}
}

func convertMathSegments(text string, vocab *vocabulary) string {
	convert := func(re *regexp.Regexp) {
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			inner := re.FindStringSubmatch(match)[1]
			return " " + speakMath(inner, vocab) + " "
		})
	}
	convert(displayDollar)
	convert(displayBracket)
	convert(inlineParen)
	convert(inlineDollar)
	return text
}

// speakMath rewrites the body of one math segment.
func speakMath(expr string, vocab *vocabulary) string {
	expr = vocab.symbols.Replace(expr)
	expr = rewriteStructures(expr, vocab, true)
	expr = replaceMacros(expr, vocab)
	expr = stripLatex(expr)
	expr = vocab.math.Replace(expr)
	expr = mathGrouping.Replace(expr)
	return strings.TrimSpace(whitespace.ReplaceAllString(expr, " "))
}

// rewriteStructures expands fractions, roots and exponents innermost first.
// Subscripts are only touched inside math so identifiers like file_name in
// prose survive.
func rewriteStructures(expr string, vocab *vocabulary, inMath bool) string {
	for i := 0; i < maxPasses; i++ {
		before := expr
		expr = fracPattern.ReplaceAllStringFunc(expr, func(m string) string {
			parts := fracPattern.FindStringSubmatch(m)
			return fmt.Sprintf(vocab.over, strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]))
		})
		expr = rootPattern.ReplaceAllStringFunc(expr, func(m string) string {
			parts := rootPattern.FindStringSubmatch(m)
			return fmt.Sprintf(vocab.root, strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]))
		})
		expr = sqrtPattern.ReplaceAllStringFunc(expr, func(m string) string {
			return fmt.Sprintf(vocab.sqrt, strings.TrimSpace(sqrtPattern.FindStringSubmatch(m)[1]))
		})
		expr = superPattern.ReplaceAllStringFunc(expr, func(m string) string {
			parts := superPattern.FindStringSubmatch(m)
			return exponent(firstNonEmpty(parts[1], parts[2]), vocab)
		})
		if inMath {
			expr = subPattern.ReplaceAllStringFunc(expr, func(m string) string {
				parts := subPattern.FindStringSubmatch(m)
				return fmt.Sprintf(vocab.sub, strings.TrimSpace(firstNonEmpty(parts[1], parts[2])))
			})
		}
		if expr == before {
			break
		}
	}
	return expr
}

func exponent(power string, vocab *vocabulary) string {
	switch strings.TrimSpace(power) {
	case "2":
		return vocab.squared
	case "3":
		return vocab.cubed
	case `\circ`, "°":
		return vocab.degrees
	default:
		return fmt.Sprintf(vocab.power, strings.TrimSpace(power))
	}
}

func replaceMacros(text string, vocab *vocabulary) string {
	return macroPattern.ReplaceAllStringFunc(text, func(m string) string {
		if spoken, ok := vocab.macros[m[1:]]; ok {
			return " " + spoken + " "
		}
		return m
	})
}

// stripLatex unwraps \cmd{x} to x, then drops bare commands and escapes.
func stripLatex(text string) string {
	for i := 0; i < maxPasses; i++ {
		next := commandWithArg.ReplaceAllString(text, " $1 ")
		if next == text {
			break
		}
		text = next
	}
	text = bareCommand.ReplaceAllString(text, " ")
	return escapedChar.ReplaceAllString(text, " ")
}

func stripMarkdown(text string) string {
	text = codeFence.ReplaceAllString(text, "$1")
	text = hrule.ReplaceAllString(text, "")
	text = header.ReplaceAllString(text, "")
	text = blockquote.ReplaceAllString(text, "")
	text = bullet.ReplaceAllString(text, "")
	text = image.ReplaceAllString(text, "$1")
	text = link.ReplaceAllString(text, "$1")
	text = boldStar.ReplaceAllString(text, "$1")
	text = boldUnder.ReplaceAllString(text, "$1")
	text = italicStar.ReplaceAllString(text, "$1")
	text = strike.ReplaceAllString(text, "$1")
	return inlineCode.ReplaceAllString(text, "$1")
}

// pace turns layout into punctuation a synthesizer pauses on: dash runs
// become commas, lines become sentences, and whitespace collapses.
func pace(text string) string {
	text = dashRun.ReplaceAllString(text, ", ")
	text = ellipsis.ReplaceAllString(text, ". ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
		if line == "" || strings.Trim(line, ",.;: ") == "" {
			continue
		}
		lines = append(lines, line)
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			prev := lines[i-1]
			if endsSentence(prev) {
				b.WriteString(" ")
			} else {
				b.WriteString(". ")
			}
		}
		b.WriteString(line)
	}
	text = b.String()

	text = bangRun.ReplaceAllString(text, "$1")
	text = commaRun.ReplaceAllString(text, ",")
	text = periodRun.ReplaceAllString(text, ".")
	text = softBeforeFS.ReplaceAllString(text, "$1")
	text = spaceBefore.ReplaceAllString(text, "$1")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.Trim(text, " ,;:")
}

func endsSentence(line string) bool {
	return strings.HasSuffix(line, ".") || strings.HasSuffix(line, "!") ||
		strings.HasSuffix(line, "?") || strings.HasSuffix(line, ":") ||
		strings.HasSuffix(line, ";") || strings.HasSuffix(line, ",") ||
		strings.HasSuffix(line, "।")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
