// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Clip clips a floating point to within a minimum and maximum value.
// If the floating point exceeds max, then the function returns the max.
// If min exceeds the floating point, then the function returns the min.
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// Finite returns whether value is neither NaN nor an infinity
func Finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// AllFinite returns whether every element of values is finite
func AllFinite(values []float64) bool {
	for _, v := range values {
		if !Finite(v) {
			return false
		}
	}
	return true
}

// ArgMax returns the index of the maximum value in a slice of float64.
// Ties are broken by the lowest index.
func ArgMax(values []float64) int {
	max, index := values[0], 0
	for i, value := range values {
		if value > max {
			max = value
			index = i
		}
	}
	return index
}

// Min calculates and returns the minimum float64 in a list
func Min(values ...float64) float64 {
	min := values[0]
	for _, val := range values {
		if val < min {
			min = val
		}
	}
	return min
}

// Max calculates and returns the maximum float64 in a list
func Max(values ...float64) float64 {
	max := values[0]
	for _, val := range values {
		if val > max {
			max = val
		}
	}
	return max
}

// LogSoftmax computes the log-softmax of logits into dst and returns
// dst. If dst is nil, a new slice is allocated.
func LogSoftmax(logits, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(logits))
	}
	lse := floats.LogSumExp(logits)
	for i, l := range logits {
		dst[i] = l - lse
	}
	return dst
}

// Softmax computes the softmax of logits into dst and returns dst. If
// dst is nil, a new slice is allocated.
func Softmax(logits, dst []float64) []float64 {
	dst = LogSoftmax(logits, dst)
	for i, l := range dst {
		dst[i] = math.Exp(l)
	}
	return dst
}
