package ml

import (
	"math"
	"sort"
)

// Classifier is a multinomial naive Bayes model over tf-idf features.
// Labels are kept sorted so prediction is deterministic.
type Classifier struct {
	Labels   []string
	LogPrior []float64
	// TermLogProb[l][t] is the smoothed log-likelihood of term t under
	// label Labels[l].
	TermLogProb [][]float64
	Features    int
}

// FitClassifier estimates priors and per-label term weights from sparse
// training vectors and their labels.
func FitClassifier(vectors []map[int]float64, labels []string, features int) *Classifier {
	byLabel := map[string]int{}
	for _, l := range labels {
		byLabel[l]++
	}

	names := make([]string, 0, len(byLabel))
	for l := range byLabel {
		names = append(names, l)
	}
	sort.Strings(names)

	c := &Classifier{
		Labels:      names,
		LogPrior:    make([]float64, len(names)),
		TermLogProb: make([][]float64, len(names)),
		Features:    features,
	}

	index := map[string]int{}
	for i, l := range names {
		index[l] = i
		c.LogPrior[i] = math.Log(float64(byLabel[l]) / float64(len(labels)))
	}

	counts := make([][]float64, len(names))
	totals := make([]float64, len(names))
	for i := range counts {
		counts[i] = make([]float64, features)
	}
	for row, vec := range vectors {
		li := index[labels[row]]
		for t, w := range vec {
			counts[li][t] += w
			totals[li] += w
		}
	}

	for li := range names {
		c.TermLogProb[li] = make([]float64, features)
		denom := math.Log(totals[li] + float64(features))
		for t := 0; t < features; t++ {
			// Laplace smoothing over the weighted counts.
			c.TermLogProb[li][t] = math.Log(counts[li][t]+1) - denom
		}
	}
	return c
}

// PredictProba returns the posterior distribution over labels for one
// sparse vector.
func (c *Classifier) PredictProba(vec map[int]float64) map[string]float64 {
	joint := make([]float64, len(c.Labels))
	for li := range c.Labels {
		score := c.LogPrior[li]
		for t, w := range vec {
			if t < c.Features {
				score += w * c.TermLogProb[li][t]
			}
		}
		joint[li] = score
	}

	max := joint[0]
	for _, s := range joint[1:] {
		if s > max {
			max = s
		}
	}

	var sum float64
	probs := make([]float64, len(joint))
	for i, s := range joint {
		probs[i] = math.Exp(s - max)
		sum += probs[i]
	}

	out := make(map[string]float64, len(c.Labels))
	for i, l := range c.Labels {
		out[l] = probs[i] / sum
	}
	return out
}

// Predict returns the most probable label and its probability. Ties break
// toward the lexicographically first label.
func (c *Classifier) Predict(vec map[int]float64) (string, float64) {
	probs := c.PredictProba(vec)

	best, bestP := "", -1.0
	for _, l := range c.Labels {
		if probs[l] > bestP {
			best, bestP = l, probs[l]
		}
	}
	return best, bestP
}
