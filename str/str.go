// Package str provides string helpers shared by the support packages:
// slug humanizing, placeholder substitution, LIKE pattern expansion and
// decoding of hex encoded binary streams.
package str

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var slugSeparators = strings.NewReplacer("-", " ", "_", " ")

// Humanize converts slug type text to human readable text.
//
//	str.Humanize("foo-bar_baz") // "Foo Bar Baz"
func Humanize(text string) string {
	// cases.Caser keeps state and must not be shared between goroutines.
	return cases.Title(language.Und).String(slugSeparators.Replace(text))
}

// Studly converts slug type text to StudlyCase, keeping the case of letters
// after the first one of every word.
//
//	str.Studly("user-created") // "UserCreated"
func Studly(text string) string {
	s := cases.Title(language.Und, cases.NoLower).String(slugSeparators.Replace(text))
	return strings.ReplaceAll(s, " ", "")
}

// Replace substitutes replacements into text. Every key matches both as is
// and wrapped in braces, so {"name": "Taylor"} rewrites "{name}" and "name".
// At any position the longest matching key wins and substituted text is
// never scanned again.
func Replace(text string, replacements map[string]string) string {
	if len(replacements) == 0 {
		return text
	}
	return newReplacer(replacements).Replace(text)
}

// ReplaceEach applies Replace to every element of texts and returns the
// results in a new slice.
func ReplaceEach(texts []string, replacements map[string]string) []string {
	out := make([]string, len(texts))
	if len(replacements) == 0 {
		copy(out, texts)
		return out
	}

	r := newReplacer(replacements)
	for i, text := range texts {
		out[i] = r.Replace(text)
	}
	return out
}

// newReplacer builds a replacer with strtr semantics. strings.Replacer tries
// its pairs in argument order, so longer keys go first.
func newReplacer(replacements map[string]string) *strings.Replacer {
	bindings := prepareBindings(replacements, "{", "}")

	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		if k == "" {
			continue
		}
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
		pairs = append(pairs, k, bindings[k])
	}
	return strings.NewReplacer(pairs...)
}

func prepareBindings(bindings map[string]string, prefix, suffix string) map[string]string {
	out := make(map[string]string, len(bindings)*2)
	for k, v := range bindings {
		out[k] = v
		out[prefix+k+suffix] = v
	}
	return out
}

// Searchable expands text into SQL LIKE patterns using "*" as the wildcard
// and "%" as its replacement. See SearchableWith.
func Searchable(text string) []string {
	return SearchableWith(text, "*", "%")
}

// SearchableWith expands text into SQL LIKE patterns. Text without the
// wildcard yields an exact, a prefix, a suffix and a contains pattern; text
// with the wildcard yields a single pattern with every wildcard replaced.
func SearchableWith(text, wildcard, replacement string) []string {
	if wildcard == "" || !strings.Contains(text, wildcard) {
		return []string{
			text,
			text + replacement,
			replacement + text,
			replacement + text + replacement,
		}
	}

	return []string{strings.ReplaceAll(text, wildcard, replacement)}
}
