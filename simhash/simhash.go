// Package simhash measures how much a page changed between two moments
// of a run, as the Hamming distance of 64-bit SimHash fingerprints.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// Fingerprint computes a 64-bit SimHash of the word tokens of text.
func Fingerprint(text string) uint64 {
	return fingerprintTokens(strings.Fields(text))
}

// FingerprintDOM computes a SimHash of the element structure of htmlStr,
// using 3-tag shingles of the open-tag sequence. Text and attributes are
// ignored, so a re-render with different labels keeps the same print.
func FingerprintDOM(htmlStr string) uint64 {
	tags := extractTags(htmlStr)
	if len(tags) == 0 {
		return 0
	}
	if shingles := makeShingles(tags, 3); len(shingles) > 0 {
		return fingerprintTokens(shingles)
	}
	return fingerprintTokens(tags)
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b are within threshold bits of each other.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Drift is the distance between two page states.
type Drift struct {
	Text int
	DOM  int
}

// Compare fingerprints the visible text and the markup of two page states.
func Compare(beforeText, beforeHTML, afterText, afterHTML string) Drift {
	return Drift{
		Text: Distance(Fingerprint(beforeText), Fingerprint(afterText)),
		DOM:  Distance(FingerprintDOM(beforeHTML), FingerprintDOM(afterHTML)),
	}
}

func fingerprintTokens(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := range vector {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i, v := range vector {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// extractTags collects open tag names in document order.
func extractTags(htmlStr string) []string {
	z := html.NewTokenizer(strings.NewReader(htmlStr))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

// makeShingles joins each run of n consecutive tokens with "_".
func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}
