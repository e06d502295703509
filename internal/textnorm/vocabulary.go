package textnorm

import (
	"sort"
	"strings"
)

type vocabulary struct {
	macros  map[string]string
	symbols *strings.Replacer
	math    *strings.Replacer
	prose   *strings.Replacer // operators spoken outside math

	squared string
	cubed   string
	degrees string
	power   string // fmt verb receives the exponent
	sub     string
	over    string // numerator, denominator
	sqrt    string
	root    string // degree, radicand
}

var vocabularies = map[Language]*vocabulary{
	English: {
		macros:  englishMacros,
		symbols: longestFirst(englishSymbols),
		math:    longestFirst(englishOperators),
		prose:   longestFirst(proseOperators(englishOperators)),
		squared: " squared ",
		cubed:   " cubed ",
		degrees: " degrees ",
		power:   " to the power of %s ",
		sub:     " sub %s ",
		over:    " %s over %s ",
		sqrt:    " square root of %s ",
		root:    " %s root of %s ",
	},
	Bengali: {
		macros:  bengaliMacros,
		symbols: longestFirst(bengaliSymbols),
		math:    longestFirst(bengaliOperators),
		prose:   longestFirst(proseOperators(bengaliOperators)),
		squared: " এর বর্গ ",
		cubed:   " এর ঘন ",
		degrees: " ডিগ্রি ",
		power:   " এর %s ঘাত ",
		sub:     " সাব %s ",
		over:    " %s ভাগ %s ",
		sqrt:    " %s এর বর্গমূল ",
		root:    " %[2]s এর %[1]s তম মূল ",
	},
}

// longestFirst builds a replacer that tries longer patterns before their
// prefixes ("<=" before "<"). strings.Replacer picks the first listed match
// at each position.
func longestFirst(table map[string]string) *strings.Replacer {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, " "+table[k]+" ")
	}
	return strings.NewReplacer(pairs...)
}

// proseOperators keeps the signs that never serve as punctuation in running
// text. Hyphens, slashes and asterisks stay with prose.
func proseOperators(ops map[string]string) map[string]string {
	out := make(map[string]string)
	for _, k := range []string{"<=", ">=", "!=", "==", "=", "+", "<", ">"} {
		out[k] = ops[k]
	}
	return out
}

var englishOperators = map[string]string{
	"<=": "less than or equal to",
	">=": "greater than or equal to",
	"!=": "not equal to",
	"==": "equals",
	"->": "goes to",
	"=>": "implies",
	"+":  "plus",
	"-":  "minus",
	"=":  "equals",
	"<":  "less than",
	">":  "greater than",
	"*":  "times",
	"/":  "divided by",
}

var bengaliOperators = map[string]string{
	"<=": "ছোট অথবা সমান",
	">=": "বড় অথবা সমান",
	"!=": "সমান নয়",
	"==": "সমান",
	"->": "দিকে",
	"=>": "সুতরাং",
	"+":  "যোগ",
	"-":  "বিয়োগ",
	"=":  "সমান",
	"<":  "ছোট",
	">":  "বড়",
	"*":  "গুণ",
	"/":  "ভাগ",
}

var englishSymbols = map[string]string{
	"≤": "less than or equal to",
	"≥": "greater than or equal to",
	"≠": "not equal to",
	"≈": "approximately equal to",
	"×": "times",
	"÷": "divided by",
	"±": "plus or minus",
	"∞": "infinity",
	"∈": "in",
	"∉": "not in",
	"⊂": "subset of",
	"⊆": "subset of or equal to",
	"∪": "union",
	"∩": "intersection",
	"∅": "the empty set",
	"∀": "for all",
	"∃": "there exists",
	"√": "square root of",
	"→": "goes to",
	"⇒": "implies",
	"⇔": "if and only if",
	"π": "pi",
	"θ": "theta",
	"α": "alpha",
	"β": "beta",
	"Δ": "delta",
	"°": "degrees",
	"²": "squared",
	"³": "cubed",
}

var bengaliSymbols = map[string]string{
	"≤": "ছোট অথবা সমান",
	"≥": "বড় অথবা সমান",
	"≠": "সমান নয়",
	"≈": "প্রায় সমান",
	"×": "গুণ",
	"÷": "ভাগ",
	"±": "যোগ বিয়োগ",
	"∞": "অসীম",
	"∈": "এর সদস্য",
	"∉": "এর সদস্য নয়",
	"⊂": "উপসেট",
	"⊆": "উপসেট অথবা সমান",
	"∪": "সংযোগ",
	"∩": "ছেদ",
	"∅": "ফাঁকা সেট",
	"∀": "সকল",
	"∃": "বিদ্যমান",
	"√": "বর্গমূল",
	"→": "দিকে",
	"⇒": "সুতরাং",
	"⇔": "যদি এবং কেবল যদি",
	"π": "পাই",
	"θ": "থিটা",
	"α": "আলফা",
	"β": "বিটা",
	"Δ": "ডেল্টা",
	"°": "ডিগ্রি",
	"²": "এর বর্গ",
	"³": "এর ঘন",
}

var englishMacros = map[string]string{
	// operators
	"times": "times", "cdot": "times", "div": "divided by",
	"pm": "plus or minus", "mp": "minus or plus",
	"sum": "the sum of", "prod": "the product of", "int": "the integral of",
	"oint": "the contour integral of", "lim": "the limit of",
	"partial": "partial", "nabla": "nabla", "infty": "infinity",
	// relations
	"leq": "less than or equal to", "le": "less than or equal to",
	"geq": "greater than or equal to", "ge": "greater than or equal to",
	"neq": "not equal to", "ne": "not equal to",
	"approx": "approximately equal to", "equiv": "is equivalent to",
	"sim": "is similar to", "cong": "is congruent to",
	"propto": "is proportional to", "perp": "is perpendicular to",
	"parallel": "is parallel to", "ll": "much less than", "gg": "much greater than",
	// sets and logic
	"in": "in", "notin": "not in", "subset": "subset of",
	"subseteq": "subset of or equal to", "supset": "superset of",
	"supseteq": "superset of or equal to", "cup": "union", "cap": "intersection",
	"emptyset": "the empty set", "varnothing": "the empty set",
	"setminus": "minus", "forall": "for all", "exists": "there exists",
	"neg": "not", "lnot": "not", "land": "and", "wedge": "and",
	"lor": "or", "vee": "or", "therefore": "therefore", "because": "because",
	"mathbb": "", "angle": "angle", "triangle": "triangle", "circ": "degrees",
	"degree": "degrees",
	// greek
	"alpha": "alpha", "beta": "beta", "gamma": "gamma", "delta": "delta",
	"epsilon": "epsilon", "varepsilon": "epsilon", "zeta": "zeta", "eta": "eta",
	"theta": "theta", "vartheta": "theta", "iota": "iota", "kappa": "kappa",
	"lambda": "lambda", "mu": "mu", "nu": "nu", "xi": "xi", "pi": "pi",
	"varpi": "pi", "rho": "rho", "sigma": "sigma", "tau": "tau",
	"upsilon": "upsilon", "phi": "phi", "varphi": "phi", "chi": "chi",
	"psi": "psi", "omega": "omega",
	"Gamma": "capital gamma", "Delta": "capital delta", "Theta": "capital theta",
	"Lambda": "capital lambda", "Xi": "capital xi", "Pi": "capital pi",
	"Sigma": "capital sigma", "Phi": "capital phi", "Psi": "capital psi",
	"Omega": "capital omega",
	// functions
	"sin": "sine", "cos": "cosine", "tan": "tangent", "cot": "cotangent",
	"sec": "secant", "csc": "cosecant", "arcsin": "arc sine",
	"arccos": "arc cosine", "arctan": "arc tangent", "sinh": "hyperbolic sine",
	"cosh": "hyperbolic cosine", "tanh": "hyperbolic tangent",
	"log": "log", "ln": "natural log", "exp": "exponential",
	"max": "maximum", "min": "minimum",
	// arrows
	"to": "goes to", "rightarrow": "goes to", "leftarrow": "comes from",
	"Rightarrow": "implies", "implies": "implies", "Leftarrow": "is implied by",
	"Leftrightarrow": "if and only if", "iff": "if and only if",
	"leftrightarrow": "corresponds to", "mapsto": "maps to",
	"uparrow": "increases", "downarrow": "decreases",
	// spacing and sizing
	"left": "", "right": "", "quad": "", "qquad": "", "displaystyle": "",
	"ldots": "and so on", "cdots": "and so on", "dots": "and so on",
}

var bengaliMacros = map[string]string{
	"times": "গুণ", "cdot": "গুণ", "div": "ভাগ",
	"pm": "যোগ বিয়োগ", "mp": "বিয়োগ যোগ",
	"sum": "যোগফল", "prod": "গুণফল", "int": "ইন্টিগ্রাল",
	"oint": "বদ্ধ ইন্টিগ্রাল", "lim": "লিমিট",
	"partial": "আংশিক", "nabla": "ন্যাবলা", "infty": "অসীম",
	"leq": "ছোট অথবা সমান", "le": "ছোট অথবা সমান",
	"geq": "বড় অথবা সমান", "ge": "বড় অথবা সমান",
	"neq": "সমান নয়", "ne": "সমান নয়",
	"approx": "প্রায় সমান", "equiv": "সমতুল্য",
	"sim": "সদৃশ", "cong": "সর্বসম",
	"propto": "সমানুপাতিক", "perp": "লম্ব",
	"parallel": "সমান্তরাল", "ll": "অনেক ছোট", "gg": "অনেক বড়",
	"in": "এর সদস্য", "notin": "এর সদস্য নয়", "subset": "উপসেট",
	"subseteq": "উপসেট অথবা সমান", "supset": "সুপারসেট",
	"supseteq": "সুপারসেট অথবা সমান", "cup": "সংযোগ", "cap": "ছেদ",
	"emptyset": "ফাঁকা সেট", "varnothing": "ফাঁকা সেট",
	"setminus": "বাদে", "forall": "সকল", "exists": "বিদ্যমান",
	"neg": "নয়", "lnot": "নয়", "land": "এবং", "wedge": "এবং",
	"lor": "অথবা", "vee": "অথবা", "therefore": "অতএব", "because": "কারণ",
	"mathbb": "", "angle": "কোণ", "triangle": "ত্রিভুজ", "circ": "ডিগ্রি",
	"degree": "ডিগ্রি",
	"alpha":  "আলফা", "beta": "বিটা", "gamma": "গামা", "delta": "ডেল্টা",
	"epsilon": "এপসাইলন", "varepsilon": "এপসাইলন", "zeta": "জিটা", "eta": "ইটা",
	"theta": "থিটা", "vartheta": "থিটা", "iota": "আয়োটা", "kappa": "কাপা",
	"lambda": "ল্যামডা", "mu": "মিউ", "nu": "নিউ", "xi": "জাই", "pi": "পাই",
	"varpi": "পাই", "rho": "রো", "sigma": "সিগমা", "tau": "টাউ",
	"upsilon": "আপসাইলন", "phi": "ফাই", "varphi": "ফাই", "chi": "কাই",
	"psi": "সাই", "omega": "ওমেগা",
	"Gamma": "গামা", "Delta": "ডেল্টা", "Theta": "থিটা",
	"Lambda": "ল্যামডা", "Xi": "জাই", "Pi": "পাই",
	"Sigma": "সিগমা", "Phi": "ফাই", "Psi": "সাই",
	"Omega": "ওমেগা",
	"sin":   "সাইন", "cos": "কস", "tan": "ট্যান", "cot": "কট",
	"sec": "সেক", "csc": "কোসেক", "arcsin": "আর্ক সাইন",
	"arccos": "আর্ক কস", "arctan": "আর্ক ট্যান", "sinh": "সাইন এইচ",
	"cosh": "কস এইচ", "tanh": "ট্যান এইচ",
	"log": "লগ", "ln": "লন", "exp": "এক্সপোনেনশিয়াল",
	"max": "সর্বোচ্চ", "min": "সর্বনিম্ন",
	"to": "দিকে", "rightarrow": "দিকে", "leftarrow": "থেকে",
	"Rightarrow": "সুতরাং", "implies": "সুতরাং", "Leftarrow": "যেহেতু",
	"Leftrightarrow": "যদি এবং কেবল যদি", "iff": "যদি এবং কেবল যদি",
	"leftrightarrow": "অনুরূপ", "mapsto": "ম্যাপ করে",
	"uparrow": "বৃদ্ধি", "downarrow": "হ্রাস",
	"left": "", "right": "", "quad": "", "qquad": "", "displaystyle": "",
	"ldots": "ইত্যাদি", "cdots": "ইত্যাদি", "dots": "ইত্যাদি",
}
