// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package beamsearch

import (
	"math"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// maskedLogProb is the log-probability given to every non-padding token of a finished hypothesis.
// It works as -Inf, but keeps the arithmetic finite.
const maskedLogProb = -math.MaxFloat64

// SearchStepOutput is the record of one step: for each new hypothesis its length normalized score,
// the index of the hypothesis it extends in the previous step, and the token it appended.
type SearchStepOutput struct {
	Scores    []float64
	ParentIDs []int
	TokenIDs  []int
}

// checkStepOutput panics if the scorer broke its contract for the given input.
//
// The logits of unfinished hypotheses must hold at least one finite value and no NaN or +Inf:
// otherwise every candidate of the row would rank below the masked continuations of finished
// hypotheses. Rows of finished hypotheses are masked and not checked.
func (s *settings) checkStepOutput(in *StepInput, out *StepOutput, finished []bool) {
	if out == nil || out.Logits == nil {
		exceptions.Panicf("step %d: scorer returned no logits", in.Step)
	}
	if rows, cols := out.Logits.Dims(); rows != s.beamSize || cols != s.vocabSize {
		exceptions.Panicf("step %d: scorer returned logits shaped [%d, %d], expected [beamSize=%d, vocabSize=%d]",
			in.Step, rows, cols, s.beamSize, s.vocabSize)
	}
	for row := 0; row < s.beamSize; row++ {
		if finished[row] {
			continue
		}
		allNegInf := true
		for token, logit := range out.Logits.RawRowView(row) {
			if math.IsNaN(logit) || math.IsInf(logit, 1) {
				exceptions.Panicf("step %d: scorer returned logit %g for token %d of hypothesis row %d",
					in.Step, logit, token, row)
			}
			if !math.IsInf(logit, -1) {
				allNegInf = false
			}
		}
		if allNegInf {
			exceptions.Panicf("step %d: scorer returned only -Inf logits for hypothesis row %d", in.Step, row)
		}
	}
	if out.States == nil {
		exceptions.Panicf("step %d: scorer returned no recurrent states", in.Step)
	}
	if rows, _ := out.States.Dims(); rows != s.beamSize {
		exceptions.Panicf("step %d: scorer returned %d recurrent states, expected beamSize=%d", in.Step, rows, s.beamSize)
	}
	if len(out.Contexts) != len(in.Contexts) {
		exceptions.Panicf("step %d: scorer returned %d attention contexts, expected %d",
			in.Step, len(out.Contexts), len(in.Contexts))
	}
	for ii, context := range out.Contexts {
		if context == nil {
			exceptions.Panicf("step %d: scorer returned a nil attention context #%d", in.Step, ii)
		}
		if rows, _ := context.Dims(); rows != s.beamSize {
			exceptions.Panicf("step %d: scorer returned attention context #%d with %d rows, expected beamSize=%d",
				in.Step, ii, rows, s.beamSize)
		}
	}
}

// rankStep expands every hypothesis of state with every token of the vocabulary, and keeps the
// beamSize best candidates by length normalized score.
//
// It returns the new state and the record of the step.
func (s *settings) rankStep(state *SearchState, scored *StepOutput) (*SearchState, SearchStepOutput) {
	beamSize, vocabSize := s.beamSize, s.vocabSize
	logProbs := LogSoftmax(scored.Logits)

	// hypProbs[hyp, token] is the raw joint log-probability and scores[hyp, token] its normalized
	// version; scores is created with stride vocabSize so its data is the flat [beamSize*vocabSize] vector.
	hypProbs := mat.NewDense(beamSize, vocabSize, nil)
	scores := mat.NewDense(beamSize, vocabSize, nil)
	hypLengths := make([]int, beamSize)
	for hyp := 0; hyp < beamSize; hyp++ {
		finished := state.Finished[hyp]
		hypLengths[hyp] = state.Lengths[hyp] + 1
		if finished {
			hypLengths[hyp]--
		}
		penalty := LengthPenalty(hypLengths[hyp], s.lengthNormalization)
		logProbRow := logProbs.RawRowView(hyp)
		probsRow, scoresRow := hypProbs.RawRowView(hyp), scores.RawRowView(hyp)
		for token := 0; token < vocabSize; token++ {
			logProb := logProbRow[token]
			if finished {
				// Finished hypotheses can only be continued with padding.
				if token == s.padTokenID {
					logProb = 0
				} else {
					logProb = maskedLogProb
				}
			}
			probsRow[token] = state.LogProbSum[hyp] + logProb
			scoresRow[token] = probsRow[token] / penalty
		}
	}

	flatScores := scores.RawMatrix().Data
	topIndices := TopK(flatScores, beamSize)

	step := SearchStepOutput{
		Scores:    make([]float64, beamSize),
		ParentIDs: make([]int, beamSize),
		TokenIDs:  make([]int, beamSize),
	}
	next := &SearchState{
		LogProbSum:   make([]float64, beamSize),
		Lengths:      make([]int, beamSize),
		Finished:     make([]bool, beamSize),
		LastTokenIDs: make([]int, beamSize),
	}
	for ii, flatIdx := range topIndices {
		parent, token := flatIdx/vocabSize, flatIdx%vocabSize
		step.Scores[ii] = flatScores[flatIdx]
		step.ParentIDs[ii] = parent
		step.TokenIDs[ii] = token
		next.LastTokenIDs[ii] = token
		next.LogProbSum[ii] = hypProbs.At(parent, token)
		next.Lengths[ii] = hypLengths[parent]
		next.Finished[ii] = state.Finished[parent] || token == s.endTokenID
	}
	next.LastState = gatherRows(scored.States, step.ParentIDs)
	next.LastContexts = make([]*mat.Dense, len(scored.Contexts))
	for ii, context := range scored.Contexts {
		next.LastContexts[ii] = gatherRows(context, step.ParentIDs)
	}
	return next, step
}
