// Package textsim holds the text similarity primitives shared by the
// fingerprint generator and the similarity scorer.
package textsim

import (
	"net/url"
	"strings"
	"unicode"
)

// Tokenize splits normalized text on non-alphanumeric runes.
func Tokenize(text string) []string {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return nil
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

// TokenJaccard is the Jaccard similarity of the two token sets.
func TokenJaccard(left, right string) float64 {
	return setJaccard(TokenSet(left), TokenSet(right))
}

// TrigramJaccard is the Jaccard similarity of character trigram sets.
func TrigramJaccard(left, right string) float64 {
	return setJaccard(trigramSet(left), trigramSet(right))
}

func setJaccard(leftSet, rightSet map[string]struct{}) float64 {
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0
	}

	intersection := 0
	for token := range leftSet {
		if _, ok := rightSet[token]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(leftSet) + len(rightSet) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func trigramSet(text string) map[string]struct{} {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) < 3 {
		return map[string]struct{}{string(runes): {}}
	}

	set := make(map[string]struct{}, len(runes)-2)
	for i := 0; i <= len(runes)-3; i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

const jaroWinklerPrefixScale = 0.1

// JaroWinkler returns the Jaro-Winkler similarity of the two strings in
// [0,1]. Case-sensitive; callers pass normalized text.
func JaroWinkler(left, right string) float64 {
	jaro := jaroSimilarity([]rune(left), []rune(right))
	if jaro == 0 {
		return 0
	}

	prefix := 0
	lr, rr := []rune(left), []rune(right)
	for prefix < len(lr) && prefix < len(rr) && prefix < 4 {
		if lr[prefix] != rr[prefix] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*jaroWinklerPrefixScale*(1-jaro)
}

func jaroSimilarity(left, right []rune) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	if string(left) == string(right) {
		return 1
	}

	window := max(len(left), len(right))/2 - 1
	if window < 0 {
		window = 0
	}

	leftMatched := make([]bool, len(left))
	rightMatched := make([]bool, len(right))
	matches := 0
	for i := range left {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > len(right) {
			hi = len(right)
		}
		for j := lo; j < hi; j++ {
			if rightMatched[j] || left[i] != right[j] {
				continue
			}
			leftMatched[i] = true
			rightMatched[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	j := 0
	for i := range left {
		if !leftMatched[i] {
			continue
		}
		for !rightMatched[j] {
			j++
		}
		if left[i] != right[j] {
			transpositions++
		}
		j++
	}

	m := float64(matches)
	return (m/float64(len(left)) + m/float64(len(right)) + (m-float64(transpositions)/2)/m) / 3
}

// RegistrableDomain extracts the registrable domain from a website URL or
// bare hostname; "www." prefixes are dropped. Multi-label public suffixes are
// limited to the handful seen in practice for this corpus (co.za, org.za,
// ac.za, gov.za, co.uk).
func RegistrableDomain(website string) string {
	trimmed := strings.TrimSpace(strings.ToLower(website))
	if trimmed == "" {
		return ""
	}

	host := trimmed
	if strings.Contains(trimmed, "/") || strings.Contains(trimmed, "://") {
		candidate := trimmed
		if !strings.Contains(candidate, "://") {
			candidate = "https://" + candidate
		}
		parsed, err := url.Parse(candidate)
		if err != nil || parsed.Hostname() == "" {
			return ""
		}
		host = parsed.Hostname()
	}
	host = strings.TrimPrefix(host, "www.")

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ""
	}

	suffixLabels := 1
	if len(labels) >= 3 {
		twoLabel := labels[len(labels)-2] + "." + labels[len(labels)-1]
		switch twoLabel {
		case "co.za", "org.za", "ac.za", "gov.za", "co.uk":
			suffixLabels = 2
		}
	}
	return strings.Join(labels[len(labels)-suffixLabels-1:], ".")
}
