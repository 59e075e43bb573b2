// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package beamsearch

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// StepInput is what the scorer receives at every step, for all hypotheses of the beam at once.
type StepInput struct {
	// Step index, starting at 0.
	Step int

	// States is the recurrent state of each hypothesis, shaped [beamSize, stateSize].
	States *mat.Dense

	// Contexts are the attention contexts of each hypothesis, one matrix per attention.
	Contexts []*mat.Dense

	// TokenIDs are the last tokens emitted by each hypothesis.
	TokenIDs []int
}

// StepOutput is the result of scoring one step.
type StepOutput struct {
	// Logits are the unnormalized log-probabilities of the next token, shaped [beamSize, vocabSize].
	Logits *mat.Dense

	// States are the updated recurrent states, shaped [beamSize, stateSize].
	States *mat.Dense

	// Contexts are the updated attention contexts, one matrix per attention in StepInput.
	Contexts []*mat.Dense
}

// StepScorer runs one step of the underlying autoregressive decoder for all hypotheses in the beam.
//
// It is assumed not to fail: a numerical failure is fatal and should panic.
// The matrices in StepInput must not be modified.
type StepScorer interface {
	Step(in *StepInput) *StepOutput
}

// StepScorerFn is a function implementing StepScorer.
type StepScorerFn func(in *StepInput) *StepOutput

// Step implements StepScorer.
func (fn StepScorerFn) Step(in *StepInput) *StepOutput {
	return fn(in)
}

// MaxOutputLengther is implemented by scorers that know the longest output they can produce.
// Decoder uses it as the default number of steps.
type MaxOutputLengther interface {
	MaxOutputLength() int
}

// LogSoftmax returns a new matrix with the log-softmax of each row of logits.
//
// Rows are shifted by their maximum for numerical stability; -Inf entries stay -Inf.
func LogSoftmax(logits *mat.Dense) *mat.Dense {
	rows, cols := logits.Dims()
	logProbs := mat.NewDense(rows, cols, nil)
	for row := 0; row < rows; row++ {
		dst := logProbs.RawRowView(row)
		copy(dst, logits.RawRowView(row))
		maxLogit := floats.Max(dst)
		if math.IsInf(maxLogit, -1) {
			// Degenerate row: keep it at -Inf rather than producing NaNs.
			continue
		}
		floats.AddConst(-maxLogit, dst)
		floats.AddConst(-floats.LogSumExp(dst), dst)
	}
	return logProbs
}
