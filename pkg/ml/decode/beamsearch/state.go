// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package beamsearch

import (
	"gonum.org/v1/gonum/mat"

	"github.com/sanjeeku/neuralmonkey/pkg/support/xslices"
)

// SearchState holds, for each hypothesis in the beam, its sum of log-probabilities of the tokens,
// its length, finished flag, the id of the last token, and the last decoder and attention states.
//
// All fields are parallel: row i of every field describes the same hypothesis.
type SearchState struct {
	// LogProbSum is the raw (not length normalized) sum of the token log-probabilities.
	LogProbSum []float64

	// Lengths of the hypotheses, counting the start token.
	Lengths []int

	// Finished is set once a hypothesis emitted the end token, and is inherited by its descendants.
	Finished []bool

	// LastTokenIDs are the ids of the last emitted tokens, fed to the scorer in the next step.
	LastTokenIDs []int

	// LastState is the recurrent state, shaped [beamSize, stateSize].
	LastState *mat.Dense

	// LastContexts are the attention contexts, one matrix per attention, each shaped [beamSize, contextSize].
	LastContexts []*mat.Dense
}

// InitialState is the decoder state of the single sequence being decoded, before the first step.
type InitialState struct {
	// State is the initial recurrent state. It must not be empty.
	State []float64

	// Contexts holds the initial attention contexts, one per attention. They are usually zeros.
	Contexts [][]float64
}

// NewSearchState creates the state of the beam before the first step: all hypotheses start with the
// start token, a zero log-probability, length 1, not finished, and a copy of the initial state.
func NewSearchState(beamSize, startTokenID int, initial *InitialState) *SearchState {
	state := &SearchState{
		LogProbSum:   make([]float64, beamSize),
		Lengths:      xslices.SliceWithValue(beamSize, 1),
		Finished:     make([]bool, beamSize),
		LastTokenIDs: xslices.SliceWithValue(beamSize, startTokenID),
		LastState:    tile(initial.State, beamSize),
		LastContexts: make([]*mat.Dense, len(initial.Contexts)),
	}
	for ii, context := range initial.Contexts {
		state.LastContexts[ii] = tile(context, beamSize)
	}
	return state
}

// BeamSize returns the number of hypotheses in the state.
func (s *SearchState) BeamSize() int {
	return len(s.LogProbSum)
}

// NumFinished returns how many hypotheses are finished.
func (s *SearchState) NumFinished() (count int) {
	for _, finished := range s.Finished {
		if finished {
			count++
		}
	}
	return
}

// tile repeats the vector as the rows of a new [rows, len(vector)] matrix.
func tile(vector []float64, rows int) *mat.Dense {
	m := mat.NewDense(rows, len(vector), nil)
	for row := 0; row < rows; row++ {
		m.SetRow(row, vector)
	}
	return m
}

// gatherRows returns a new matrix whose row i is the row indices[i] of m.
func gatherRows(m *mat.Dense, indices []int) *mat.Dense {
	_, cols := m.Dims()
	gathered := mat.NewDense(len(indices), cols, nil)
	for row, from := range indices {
		gathered.SetRow(row, m.RawRowView(from))
	}
	return gathered
}
