// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package beamsearch

import (
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"

	"github.com/sanjeeku/neuralmonkey/pkg/support/xslices"
)

// outputLog accumulates the SearchStepOutput of every step, in order.
type outputLog struct {
	steps []SearchStepOutput
}

func newOutputLog(maxSteps int) *outputLog {
	return &outputLog{steps: make([]SearchStepOutput, 0, maxSteps)}
}

func (l *outputLog) append(step SearchStepOutput) {
	l.steps = append(l.steps, step)
}

// stack builds the Output with one row per recorded step.
func (l *outputLog) stack(beamSize int) *Output {
	numSteps := len(l.steps)
	out := &Output{
		Scores:    mat.NewDense(numSteps, beamSize, nil),
		ParentIDs: xslices.Slice2DWithValue(0, numSteps, beamSize),
		TokenIDs:  xslices.Slice2DWithValue(0, numSteps, beamSize),
	}
	for ii, step := range l.steps {
		out.Scores.SetRow(ii, step.Scores)
		copy(out.ParentIDs[ii], step.ParentIDs)
		copy(out.TokenIDs[ii], step.TokenIDs)
	}
	return out
}

// Output of a beam search: the stacked records of all steps.
//
// Hypotheses are not stored explicitly: the hypothesis in row `row` at step `step` ends with
// TokenIDs[step][row] and extends the hypothesis in row ParentIDs[step][row] of step-1.
type Output struct {
	// Scores are the length normalized scores, shaped [steps, beamSize].
	Scores *mat.Dense

	// ParentIDs are shaped [steps][beamSize], with values in [0, beamSize).
	ParentIDs [][]int

	// TokenIDs are shaped [steps][beamSize], with values in [0, vocabSize).
	TokenIDs [][]int
}

// Steps returns the number of decoding steps recorded.
func (o *Output) Steps() int {
	return len(o.TokenIDs)
}

// BeamSize returns the number of hypotheses per step.
func (o *Output) BeamSize() int {
	_, cols := o.Scores.Dims()
	return cols
}

// FinalScores returns the scores of the hypotheses after the last step.
func (o *Output) FinalScores() []float64 {
	return mat.Row(nil, o.Steps()-1, o.Scores)
}

// Hypothesis reconstructs the tokens of the hypothesis in the given row of the last step, by
// following the parent pointers back to the first step.
func (o *Output) Hypothesis(row int) []int {
	if row < 0 || row >= o.BeamSize() {
		exceptions.Panicf("Output.Hypothesis(%d): row must be in [0, %d)", row, o.BeamSize())
	}
	tokens := make([]int, o.Steps())
	for step := o.Steps() - 1; step >= 0; step-- {
		tokens[step] = o.TokenIDs[step][row]
		row = o.ParentIDs[step][row]
	}
	return tokens
}

// Best returns the row of the best scored hypothesis after the last step, its tokens and its score.
// Ties go to the lowest row.
func (o *Output) Best() (row int, tokens []int, score float64) {
	scores := o.FinalScores()
	row = xslices.ArgMax(scores)
	return row, o.Hypothesis(row), scores[row]
}

// Trim returns the tokens before the first occurrence of endTokenID.
func Trim(tokens []int, endTokenID int) []int {
	for ii, token := range tokens {
		if token == endTokenID {
			return tokens[:ii]
		}
	}
	return tokens
}
