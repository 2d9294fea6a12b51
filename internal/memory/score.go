package memory

import (
	"math"
	"time"
)

// Similarity maps the cosine of a and b into [0, 1] as (1+cos)/2. It must stay
// non-negative: a negative similarity times a smaller decay ranks higher.
// Vectors that cannot be compared score 0.
func Similarity(a, b []float32) float64 {
	c, ok := cosine(a, b)
	if !ok {
		return 0
	}
	return (1 + c) / 2
}

// cosine reports false when the vectors differ in length or either one is zero.
func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// Decay returns exp(-rate * age_days). Negative ages count as zero.
func Decay(rate float64, age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	days := age.Hours() / 24
	return math.Exp(-rate * days)
}

// expired reports whether an item of the given age is eligible for eviction.
// The floor applies to the decay factor alone: the composite score depends on
// the query, so an item cannot be judged stale by it outside a retrieval.
func (c Config) expired(age time.Duration) bool {
	if ttl := c.TTL(); ttl > 0 && age > ttl {
		return true
	}
	return c.RetentionFloor > 0 && Decay(c.DecayRate, age) < c.RetentionFloor
}
