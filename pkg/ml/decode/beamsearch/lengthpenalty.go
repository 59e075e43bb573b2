// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package beamsearch

import "math"

// LengthPenalty returns the divisor used to normalize the log-probability of a hypothesis
// of the given length: ((5 + length) / 6) ^ alpha.
//
// This is the lp term of equation 14 in https://arxiv.org/pdf/1609.08144.pdf. With alpha = 0 it
// is always 1 (no normalization), and for length 1 it is 1 for any alpha.
func LengthPenalty(length int, alpha float64) float64 {
	return math.Pow((5.0+float64(length))/6.0, alpha)
}
