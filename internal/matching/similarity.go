package matching

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'", "´", "'", "ʼ", "'")

// decorations are title suffixes that vary between releases of the same recording.
var decorations = regexp.MustCompile(`\s*[\(\[][^\)\]]*(remaster|live|mono|stereo|version|edit|mix|demo|bonus|deluxe|feat\.?|ft\.)[^\)\]]*[\)\]]`)

// Normalize case-folds s, trims and collapses whitespace, unifies apostrophe variants and strips accents.
func Normalize(s string) string {
	s = apostrophes.Replace(strings.ToLower(s))

	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}

	return strings.Join(strings.Fields(s), " ")
}

// SimplifyTitle normalizes a title and drops bracketed decorations such as "(Remastered 2009)".
func SimplifyTitle(s string) string {
	return Normalize(decorations.ReplaceAllString(strings.ToLower(s), ""))
}

// CalculateSimilarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over normalized strings.
//
// Equal normalized strings score 1. Strings that normalize to empty but differ score 0.
// The result is symmetric and within [0, 1].
func CalculateSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" && nb == "" {
		if a == b {
			return 1
		}
		return 0
	}
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}

	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	return 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest)
}

// TitleSimilarity is the better of the plain and decoration-stripped similarity.
func TitleSimilarity(a, b string) float64 {
	return max(CalculateSimilarity(a, b), CalculateSimilarity(SimplifyTitle(a), SimplifyTitle(b)))
}
