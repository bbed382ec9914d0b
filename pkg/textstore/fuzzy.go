package textstore

import (
	"regexp"
	"strings"
	"unicode"
)

// Trigrams yields the sliding 3-rune windows of a query, lowercased.
// Queries shorter than three runes yield themselves.
func Trigrams(s string) []string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) < 3 {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

// maxPermutationRunes bounds the exponential blow-up of per-rune case
// permutations; longer tokens fall back to a fixed set of casings.
const maxPermutationRunes = 4

// CasePermutations expands a token into its case variants. Short tokens get
// every combination of per-rune casing; longer ones just the common
// casings.
func CasePermutations(s string) []string {
	runes := []rune(s)

	seen := map[string]bool{}
	var out []string
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	if len(runes) > maxPermutationRunes {
		add(s)
		add(strings.ToLower(s))
		add(strings.ToUpper(s))
		if len(runes) > 0 {
			add(string(unicode.ToUpper(runes[0])) + strings.ToLower(string(runes[1:])))
		}
		return out
	}

	n := 1 << len(runes)
	for mask := 0; mask < n; mask++ {
		variant := make([]rune, len(runes))
		for i, r := range runes {
			if mask&(1<<i) != 0 {
				variant[i] = unicode.ToUpper(r)
			} else {
				variant[i] = unicode.ToLower(r)
			}
		}
		add(string(variant))
	}
	return out
}

// BuildFuzzyRegexFilter compiles a filter that accepts paths containing the
// query's characters in order, case-insensitively, with arbitrary gaps.
// Returns nil when the query produces no usable pattern; callers treat a
// nil filter as matching nothing.
func BuildFuzzyRegexFilter(query string) *regexp.Regexp {
	var parts []string
	for _, r := range query {
		if unicode.IsSpace(r) {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	if len(parts) == 0 {
		return nil
	}

	re, err := regexp.Compile("(?i)" + strings.Join(parts, ".*?"))
	if err != nil {
		return nil
	}
	return re
}
