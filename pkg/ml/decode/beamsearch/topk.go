// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package beamsearch

import (
	"cmp"
	"math"

	pq "github.com/emirpasic/gods/v2/queues/priorityqueue"
	"github.com/gomlx/exceptions"
)

type candidate struct {
	index int
	score float64
}

// worseFirst orders candidates from the worst to the best: lower scores first, and among
// equal scores the higher index first. NaN is worse than any number.
func worseFirst(a, b candidate) int {
	aNaN, bNaN := math.IsNaN(a.score), math.IsNaN(b.score)
	switch {
	case aNaN && !bNaN:
		return -1
	case !aNaN && bNaN:
		return 1
	case !aNaN && !bNaN && a.score != b.score:
		return cmp.Compare(a.score, b.score)
	}
	return cmp.Compare(b.index, a.index)
}

// TopK returns the indices of the k largest values, largest first.
//
// The selection is deterministic: equal values are ranked by their position, lower index first.
// It panics if k is not in [1, len(values)].
func TopK(values []float64, k int) []int {
	if k <= 0 || k > len(values) {
		exceptions.Panicf("TopK(k=%d) requires 1 <= k <= %d", k, len(values))
	}
	// Bounded queue holding the best k so far, with the worst of them at the head.
	queue := pq.NewWith(worseFirst)
	for index, score := range values {
		c := candidate{index: index, score: score}
		if queue.Size() < k {
			queue.Enqueue(c)
			continue
		}
		if worst, _ := queue.Peek(); worseFirst(worst, c) < 0 {
			queue.Dequeue()
			queue.Enqueue(c)
		}
	}
	indices := make([]int, k)
	for ii := k - 1; ii >= 0; ii-- {
		c, _ := queue.Dequeue()
		indices[ii] = c.index
	}
	return indices
}
