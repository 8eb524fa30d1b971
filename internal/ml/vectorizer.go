package ml

import (
	"math"
	"strings"
	"unicode"
)

// Vectorizer maps raw text onto sparse tf-idf vectors over a vocabulary
// fixed at fit time. All fields are exported for gob serialization; a
// fitted vectorizer is never mutated.
type Vectorizer struct {
	Vocabulary map[string]int
	IDF        []float64
	Docs       int
}

// FitVectorizer builds the vocabulary and document frequencies from the
// training texts.
func FitVectorizer(texts []string) *Vectorizer {
	v := &Vectorizer{Vocabulary: make(map[string]int), Docs: len(texts)}

	docFreq := make([]int, 0)
	for _, text := range texts {
		seen := map[int]bool{}
		for _, tok := range Tokenize(text) {
			idx, ok := v.Vocabulary[tok]
			if !ok {
				idx = len(v.Vocabulary)
				v.Vocabulary[tok] = idx
				docFreq = append(docFreq, 0)
			}
			if !seen[idx] {
				seen[idx] = true
				docFreq[idx]++
			}
		}
	}

	v.IDF = make([]float64, len(docFreq))
	for i, df := range docFreq {
		// Smoothed idf keeps terms present in every document non-zero.
		v.IDF[i] = math.Log(float64(1+v.Docs)/float64(1+df)) + 1
	}
	return v
}

// Features returns the fitted vocabulary size.
func (v *Vectorizer) Features() int {
	return len(v.Vocabulary)
}

// Transform maps text to an L2-normalized sparse tf-idf vector. Terms
// outside the fitted vocabulary are dropped.
func (v *Vectorizer) Transform(text string) map[int]float64 {
	vec := make(map[int]float64)
	for _, tok := range Tokenize(text) {
		if idx, ok := v.Vocabulary[tok]; ok {
			vec[idx] += v.IDF[idx]
		}
	}

	var norm float64
	for _, w := range vec {
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i, w := range vec {
			vec[i] = w / norm
		}
	}
	return vec
}

// Tokenize lowercases and splits on non-alphanumeric runes, dropping
// single-character fragments.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
