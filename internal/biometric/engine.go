package biometric

import (
	"iter"
	"math"
)

// Distance returns the Euclidean distance between a and b. Vectors of
// different length are compared over their common prefix with the excess
// components counted against zero, so the result stays symmetric.
func Distance(a, b Embedding) float64 {
	n := max(len(a), len(b))
	var sum float64
	for i := range n {
		var x, y float64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		d := x - y
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Verify compares a probe with one reference. The match decision is
// distance <= tolerance; confidence is never consulted.
func Verify(reference, probe Embedding, tolerance float64) (bool, float64) {
	d := Distance(reference, probe)
	return d <= tolerance, d
}

// Confidence converts a distance into a 0..100 score rounded to two
// decimals. Informational only.
func Confidence(distance float64) float64 {
	c := math.Max(0, 1-distance) * 100
	return math.Round(c*100) / 100
}

// Match is the outcome of a 1:N identification.
type Match struct {
	StudentID int64
	Distance  float64
	Found     bool
}

// Identify scans every candidate and keeps the closest one; the first
// minimum seen wins ties. The best candidate is accepted only when its
// distance is within tolerance. An empty sequence yields no match.
func Identify(candidates iter.Seq[Candidate], probe Embedding, tolerance float64) Match {
	best := Match{Distance: math.Inf(1)}
	seen := false
	for c := range candidates {
		d := Distance(c.Embedding, probe)
		if !seen || d < best.Distance {
			best.StudentID = c.StudentID
			best.Distance = d
			seen = true
		}
	}
	if !seen {
		return Match{}
	}
	best.Found = best.Distance <= tolerance
	if !best.Found {
		best.StudentID = 0
	}
	return best
}
