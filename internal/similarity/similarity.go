// Package similarity implements the vector similarity metrics supported by
// the index. Every metric is oriented so that a higher score means more
// similar, which lets the search path sort all metrics the same way.
package similarity

import (
	"fmt"
	"math"
	"strings"
)

// Function names a similarity metric.
type Function string

const (
	Cosine     Function = "cosine"
	Euclidean  Function = "euclidean"
	DotProduct Function = "dot_product"
	Manhattan  Function = "manhattan"
	Jaccard    Function = "jaccard"
	Hamming    Function = "hamming"
)

// All lists every supported metric.
var All = []Function{Cosine, Euclidean, DotProduct, Manhattan, Jaccard, Hamming}

// Parse resolves a metric name. Matching is case-insensitive and accepts
// "dotproduct" and "dot" for DotProduct.
func Parse(s string) (Function, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine":
		return Cosine, nil
	case "euclidean", "l2":
		return Euclidean, nil
	case "dot_product", "dotproduct", "dot":
		return DotProduct, nil
	case "manhattan", "l1":
		return Manhattan, nil
	case "jaccard":
		return Jaccard, nil
	case "hamming":
		return Hamming, nil
	}
	return "", fmt.Errorf("unknown similarity function %q", s)
}

// Valid reports whether f is a supported metric.
func (f Function) Valid() bool {
	for _, known := range All {
		if f == known {
			return true
		}
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Function) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f Function) String() string { return string(f) }

// Score computes the similarity of a and b under f. Vectors of different
// length are compared over the shorter prefix; callers validate lengths.
func Score(f Function, a, b []float32) (float64, error) {
	switch f {
	case Cosine:
		return cosine(a, b), nil
	case Euclidean:
		return 1 / (1 + euclidean(a, b)), nil
	case DotProduct:
		return dot(a, b), nil
	case Manhattan:
		return 1 / (1 + manhattan(a, b)), nil
	case Jaccard:
		return jaccard(a, b), nil
	case Hamming:
		return hamming(a, b), nil
	}
	return 0, fmt.Errorf("unknown similarity function %q", f)
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// cosine returns 0 when either vector has zero norm.
func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var d, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		d += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return d / (math.Sqrt(na) * math.Sqrt(nb))
}

func euclidean(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func manhattan(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

// jaccard is the weighted (Ruzicka) form over absolute component values.
// Two zero vectors are identical.
func jaccard(a, b []float32) float64 {
	n := min(len(a), len(b))
	var lo, hi float64
	for i := 0; i < n; i++ {
		x, y := math.Abs(float64(a[i])), math.Abs(float64(b[i]))
		lo += math.Min(x, y)
		hi += math.Max(x, y)
	}
	if hi == 0 {
		return 1
	}
	return lo / hi
}

// hamming compares sign bits: a component is "set" when it is positive.
func hamming(a, b []float32) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	diff := 0
	for i := 0; i < n; i++ {
		if (a[i] > 0) != (b[i] > 0) {
			diff++
		}
	}
	return 1 - float64(diff)/float64(n)
}
