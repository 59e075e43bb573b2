// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"cmp"
	"slices"

	"golang.org/x/exp/constraints"
)

// SliceWithValue creates a slice of given size filled with given value.
func SliceWithValue[T any](size int, value T) []T {
	s := make([]T, size)
	for ii := range s {
		s[ii] = value
	}
	return s
}

// Slice2DWithValue creates a 2D-slice of given dimensions filled with the given value.
//
// All the data is allocated in one slice, and then partitioned in rows.
func Slice2DWithValue[T any](value T, dim0, dim1 int) [][]T {
	data := SliceWithValue(dim0*dim1, value)
	rows := make([][]T, dim0)
	for ii := range rows {
		rows[ii] = data[ii*dim1 : (ii+1)*dim1 : (ii+1)*dim1]
	}
	return rows
}

// SortedKeys returns the sorted keys of a map in the form of a slice.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	s := make([]K, 0, len(m))
	for k := range m {
		s = append(s, k)
	}
	slices.Sort(s)
	return s
}

// Iota returns a slice of incremental int values, starting with start and of length len.
// Eg: Iota(3.0, 2) -> []float64{3.0, 4.0}
func Iota[T interface {
	constraints.Integer | constraints.Float
}](start T, len int) (slice []T) {
	slice = make([]T, len)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// ArgMax returns the index of the largest value. Ties are resolved to the lowest index.
// It returns -1 for an empty slice.
func ArgMax[T constraints.Integer | constraints.Float](slice []T) int {
	if len(slice) == 0 {
		return -1
	}
	best := 0
	for ii, v := range slice[1:] {
		if v > slice[best] {
			best = ii + 1
		}
	}
	return best
}
