// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package beamsearch

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// constantScorer returns, at every step, the given logits row for each hypothesis, and keeps the
// recurrent state and contexts unchanged.
func constantScorer(rows [][]float64) StepScorerFn {
	return func(in *StepInput) *StepOutput {
		beamSize := len(in.TokenIDs)
		logits := mat.NewDense(beamSize, len(rows[0]), nil)
		for ii := 0; ii < beamSize; ii++ {
			logits.SetRow(ii, rows[ii%len(rows)])
		}
		return &StepOutput{Logits: logits, States: in.States, Contexts: in.Contexts}
	}
}

// randomScorer produces pseudo-random logits that depend on the step, the last token and the
// state of each hypothesis. The first state column accumulates the tokens fed to it, and the end
// token is boosted so hypotheses finish at various steps.
type randomScorer struct {
	vocabSize, endTokenID int
	seed                  uint64

	// If record is set, recorded holds the outputs of every step. Recording is not safe for
	// concurrent use.
	record   bool
	recorded []*StepOutput
}

func (s *randomScorer) Step(in *StepInput) *StepOutput {
	beamSize, stateSize := in.States.Dims()
	rng := rand.New(rand.NewPCG(s.seed, uint64(in.Step)))
	logits := mat.NewDense(beamSize, s.vocabSize, nil)
	states := mat.NewDense(beamSize, stateSize, nil)
	states.Copy(in.States)
	for row := 0; row < beamSize; row++ {
		history := states.At(row, 0)
		for token := 0; token < s.vocabSize; token++ {
			logits.Set(row, token, rng.NormFloat64()+math.Sin(history+float64(token)))
		}
		logits.Set(row, s.endTokenID, logits.At(row, s.endTokenID)+0.5*float64(in.Step))
		states.Set(row, 0, history+float64(in.TokenIDs[row]))
	}
	contexts := make([]*mat.Dense, len(in.Contexts))
	for ii, context := range in.Contexts {
		_, contextSize := context.Dims()
		contexts[ii] = mat.NewDense(beamSize, contextSize, nil)
		for row := 0; row < beamSize; row++ {
			for col := 0; col < contextSize; col++ {
				contexts[ii].Set(row, col, 0.5*context.At(row, col)+states.At(row, 0))
			}
		}
	}
	out := &StepOutput{Logits: logits, States: states, Contexts: contexts}
	if s.record {
		s.recorded = append(s.recorded, out)
	}
	return out
}

// maxOutputLengthScorer adds MaxOutputLength to a StepScorerFn.
type maxOutputLengthScorer struct {
	StepScorerFn
	maxLength int
}

func (s maxOutputLengthScorer) MaxOutputLength() int { return s.maxLength }
