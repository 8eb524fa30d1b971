package ml

import "math"

// Outlier scores how far a document sits from the training corpus
// centroid. Scores live in [0,1]; higher means more anomalous.
type Outlier struct {
	Centroid []float64
	MeanDist float64
	StdDist  float64
}

// FitOutlier computes the corpus centroid and the distribution of
// training-document distances from it.
func FitOutlier(vectors []map[int]float64, features int) *Outlier {
	o := &Outlier{Centroid: make([]float64, features)}
	if len(vectors) == 0 {
		return o
	}

	for _, vec := range vectors {
		for t, w := range vec {
			o.Centroid[t] += w
		}
	}
	var norm float64
	for _, w := range o.Centroid {
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range o.Centroid {
			o.Centroid[i] /= norm
		}
	}

	dists := make([]float64, len(vectors))
	var mean float64
	for i, vec := range vectors {
		dists[i] = o.distance(vec)
		mean += dists[i]
	}
	mean /= float64(len(dists))

	var variance float64
	for _, d := range dists {
		variance += (d - mean) * (d - mean)
	}
	o.MeanDist = mean
	o.StdDist = math.Sqrt(variance / float64(len(dists)))
	return o
}

// Score maps the cosine distance from the centroid to [0,1] relative to
// the training distance distribution.
func (o *Outlier) Score(vec map[int]float64) float64 {
	d := o.distance(vec)
	if o.StdDist == 0 {
		if d > o.MeanDist {
			return 1
		}
		return 0
	}

	z := (d - o.MeanDist) / o.StdDist
	score := z / 3
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// distance is cosine distance; input vectors are already L2-normalized.
func (o *Outlier) distance(vec map[int]float64) float64 {
	var dot float64
	for t, w := range vec {
		if t < len(o.Centroid) {
			dot += w * o.Centroid[t]
		}
	}
	if dot > 1 {
		dot = 1
	}
	return 1 - dot
}
