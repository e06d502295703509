package textnorm

import (
	"strings"
	"testing"
	"unicode"
)

func TestNormalizeInlineMath(t *testing.T) {
	got := Normalize("$x^2$", Auto)
	if !strings.Contains(got, "squared") {
		t.Fatalf("expected squared in %q", got)
	}
	if strings.ContainsAny(got, "$^") {
		t.Fatalf("expected math markup removed, got %q", got)
	}
}

func TestNormalizeEquationSpeaksEverything(t *testing.T) {
	got := Normalize("$x^2 + y = 5$", English)
	if got != "x squared plus y equals five" {
		t.Fatalf("unexpected normalization %q", got)
	}
	for _, r := range got {
		if unicode.IsDigit(r) {
			t.Fatalf("digit left in %q", got)
		}
	}
}

func TestNormalizeBengaliMacro(t *testing.T) {
	got := Normalize(`\alpha`, Bengali)
	if got != "আলফা" {
		t.Fatalf("expected Bengali alpha, got %q", got)
	}
}

func TestNormalizeCases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		lang Language
		want string
	}{
		{"fraction", `$\frac{1}{2}$`, English, "one over two"},
		{"square root", `$\sqrt{x}$`, English, "square root of x"},
		{"relation macro", `$a \leq b$`, English, "a less than or equal to b"},
		{"subscript", `$x_1$`, English, "x sub one"},
		{"display math", `$$a - b$$`, English, "a minus b"},
		{"bracket math", `\[ \pi r^2 \]`, English, "pi r squared"},
		{"bengali exponent", `$x^2$`, Bengali, "x এর বর্গ"},
		{"unknown command unwrapped", `\textbf{hello} world`, English, "hello world"},
		{"dash pause", "First -- second", English, "First, second"},
		{"ellipsis", "Wait... what", English, "Wait. what"},
		{"lines become sentences", "Line one\nLine two.", English, "Line one. Line two."},
		{"thousands and decimals", "There are 1,234 apples and 3.5 pears", English,
			"There are one thousand two hundred thirty-four apples and three point five pears"},
		{"bengali digits", "মোট 25 টি", Bengali, "মোট ২৫ টি"},
		{"unicode symbols", "a ≤ b", English, "a less than or equal to b"},
		{"currency is not math", "costs $5 and $10", English, "costs five and ten"},
		{"operators in prose", "so x=3 and a+b", English, "so x equals three and a plus b"},
		{"comparison in prose", "if n >= 2 then", English, "if n greater than or equal to two then"},
		{"hyphens stay prose", "a well-known result", English, "a well-known result"},
		{"bengali operators in prose", "x=y", Bengali, "x সমান y"},
		{"invalid utf-8 dropped", "\xff\xfe hello $$", English, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in, tt.lang); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeMarkdown(t *testing.T) {
	in := "# Title\n\n**Bold** and *italic* with `code`\n---\n- item one\n- item two"
	got := Normalize(in, English)
	want := "Title. Bold and italic with code. item one. item two"
	if got != want {
		t.Fatalf("unexpected markdown normalization\n got: %q\nwant: %q", got, want)
	}
}

func TestNormalizeLinksAndFences(t *testing.T) {
	in := "See [the guide](https://example.test/guide).\n```go\nfmt.Println()\n```"
	got := Normalize(in, English)
	if strings.Contains(got, "https://") || strings.Contains(got, "```") {
		t.Fatalf("expected link target and fences removed, got %q", got)
	}
	if !strings.HasPrefix(got, "See the guide.") {
		t.Fatalf("expected link text kept, got %q", got)
	}
}

func TestNormalizeNeverFailsOnJunk(t *testing.T) {
	inputs := []string{"", "$", "$$", `\`, "{{{", `\frac{`, "^^^", "$$$$", `\sqrt[`, "***", "\x00\xff", "--", "…"}
	for _, in := range inputs {
		got := Normalize(in, Auto)
		if strings.ContainsAny(got, "$^{}\\") {
			t.Fatalf("Normalize(%q) left markup: %q", in, got)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want Language
	}{
		{"আমি ভাত খাই", Bengali},
		{"hello world", English},
		{"", English},
		{"   ", English},
		{"x = আমি", Bengali},
		{"abcdefgh আ", English},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.in); got != tt.want {
			t.Fatalf("DetectLanguage(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestProcessReportsResolvedLanguage(t *testing.T) {
	if res := Process("আমি ভাত খাই", Auto); res.Language != Bengali {
		t.Fatalf("expected bn, got %s", res.Language)
	}
	if res := Process("আমি ভাত খাই", English); res.Language != English {
		t.Fatalf("expected explicit language to win, got %s", res.Language)
	}
}

func TestParseLanguage(t *testing.T) {
	for in, want := range map[string]Language{"": Auto, "AUTO": Auto, "bn": Bengali, " en ": English} {
		got, err := ParseLanguage(in)
		if err != nil || got != want {
			t.Fatalf("ParseLanguage(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseLanguage("fr"); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestNormalizerCache(t *testing.T) {
	n, err := NewNormalizer(2)
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	first := n.Process("$x^2$", English)
	second := n.Process("$x^2$", English)
	if first != second {
		t.Fatalf("cached result differs: %+v vs %+v", first, second)
	}
	if n.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", n.Len())
	}
	n.Process("$x^2$", Bengali)
	n.Process("other", English)
	if n.Len() != 2 {
		t.Fatalf("expected cache bounded at 2, got %d", n.Len())
	}

	uncached, err := NewNormalizer(0)
	if err != nil {
		t.Fatalf("NewNormalizer(0): %v", err)
	}
	if got := uncached.Process("$x^2$", English).Text; got != "x squared" {
		t.Fatalf("unexpected uncached result %q", got)
	}
}
