// Package simhash fingerprints text so near-duplicate pages can be spotted
// by Hamming distance.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Of returns the 64-bit SimHash of text. Words are lowercased and hashed as
// overlapping pairs so that word order contributes; a single word is hashed
// on its own. Empty text yields 0.
func Of(text string) uint64 {
	words := strings.Fields(strings.ToLower(text))
	switch len(words) {
	case 0:
		return 0
	case 1:
		return hash(words[0])
	}

	var vector [64]int
	for i := 1; i < len(words); i++ {
		h := hash(words[i-1] + " " + words[i])
		for b := range 64 {
			if h&(1<<b) != 0 {
				vector[b]++
			} else {
				vector[b]--
			}
		}
	}

	var fp uint64
	for b, v := range vector {
		if v > 0 {
			fp |= 1 << b
		}
	}
	return fp
}

func hash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Near reports whether a and b differ in at most k bits.
func Near(a, b uint64, k int) bool {
	return Distance(a, b) <= k
}
