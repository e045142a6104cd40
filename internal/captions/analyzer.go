package captions

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// Emphasis is how strongly a word is styled.
type Emphasis int

const (
	Normal Emphasis = iota
	HighImpact
	Emphatic
)

func (e Emphasis) String() string {
	switch e {
	case HighImpact:
		return "high_impact"
	case Emphatic:
		return "emphasis"
	default:
		return "normal"
	}
}

var triggerWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		wtf damn hell shit fuck bitch crap
		omg what no yes stop why whoa wow seriously absolutely never always
		screamed yelled shouted exploded cried died killed slapped punched grabbed choked
		insane crazy shocking unbelievable impossible liar cheater betrayed betrayal secret`) {
		triggerWords[w] = struct{}{}
	}
}

// highImpactColors are ASS &HAABBGGRR values: yellow, red, magenta, orange.
var highImpactColors = []string{"&H0000FFFF", "&H000000FF", "&H00FF00FF", "&H000080FF"}

// Classify decides the emphasis of a raw word, punctuation included.
func Classify(word string) Emphasis {
	clean := cleanWord(word)
	if len([]rune(clean)) > 1 && allCaps(word) {
		return HighImpact
	}
	if _, ok := triggerWords[clean]; ok {
		return HighImpact
	}
	if strings.Contains(word, "?!") || strings.Contains(word, "!!") {
		return Emphatic
	}
	return Normal
}

// cleanWord strips punctuation and lowercases.
func cleanWord(word string) string {
	var b strings.Builder
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// allCaps reports whether word has at least one cased letter and no
// lowercase ones.
func allCaps(word string) bool {
	cased := false
	for _, r := range word {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// ImpactColor picks a high-impact color from the word itself so the same
// word is always painted the same way.
func ImpactColor(word string) string {
	h := fnv.New32a()
	h.Write([]byte(cleanWord(word)))
	return highImpactColors[h.Sum32()%uint32(len(highImpactColors))]
}

// Tags returns the ASS override tags for word, without braces. Normal words
// get none.
func Tags(word string) string {
	switch Classify(word) {
	case HighImpact:
		return `\b1\fscx150\fscy150\c` + ImpactColor(word) + "&"
	case Emphatic:
		return `\b1\fscx120\fscy120`
	default:
		return ""
	}
}
