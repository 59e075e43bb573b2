// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package beamsearch implements beam search for a batch of one sequence over an autoregressive
// recurrent decoder.
//
// The hypothesis scoring follows https://arxiv.org/pdf/1609.08144.pdf: candidates are ranked by
// their log-probability divided by a length penalty (see LengthPenalty), and the beam keeps the
// beamSize best candidates at every step.
//
// The Decoder keeps a SearchState with, for each hypothesis, its log-probability sum, length,
// finished flag, last token, and the last recurrent and attention states. At every step it calls
// the StepScorer once for the whole beam, ranks all (hypothesis, token) pairs, and appends the
// chosen scores, parent pointers and tokens to a log. After the last step the log is stacked
// into an Output, from which full hypotheses are recovered by following the parent pointers.
//
// The loop always runs for the configured number of steps: finished hypotheses keep being
// extended with padding tokens.
package beamsearch

import (
	"runtime"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/params"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/vocabulary"
)

// Hyperparameter keys read by Decoder.FromParams, in the scope named after the decoder.
const (
	ParamBeamSize            = "beam_size"
	ParamMaxSteps            = "max_steps"
	ParamLengthNormalization = "length_normalization"
	ParamStartTokenID        = "start_token_id"
	ParamEndTokenID          = "end_token_id"
	ParamPadTokenID          = "pad_token_id"
)

// settings are the resolved configuration of one decoding, validated before the loop starts.
type settings struct {
	beamSize, maxSteps, vocabSize        int
	lengthNormalization                  float64
	startTokenID, endTokenID, padTokenID int
}

// Decoder configures and runs beam search over a StepScorer.
//
// The configuration should be set before calling Decode. A configured Decoder is not modified
// by Decode, so concurrent calls to Decode (for different inputs) are safe: each call owns its
// own search state and output log.
type Decoder struct {
	name   string
	scorer StepScorer

	beamSize            int
	maxSteps            int
	maxStepsSet         bool
	vocabSize           int
	lengthNormalization float64
	startTokenID        int
	endTokenID          int
	padTokenID          int

	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onStep  *priorityHooks[*hookWithName[OnStepFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

// New creates a beam search decoder over the given scorer, for a vocabulary of vocabSize tokens.
//
// The name is used in logs and errors, and as the scope of the hyperparameters read by FromParams.
//
// Defaults: beam size 4, no length normalization, the special tokens of package vocabulary, and
// the number of steps given by the scorer's MaxOutputLength, if it implements MaxOutputLengther.
//
// Example:
//
//	decoder := beamsearch.New("decoder", rnnScorer, vocab.Size()).
//		WithBeamSize(8).
//		WithLengthNormalization(0.6).
//		WithMaxSteps(50)
//	output, err := decoder.Decode(rnnScorer.InitialState())
func New(name string, scorer StepScorer, vocabSize int) *Decoder {
	return &Decoder{
		name:         name,
		scorer:       scorer,
		beamSize:     4,
		vocabSize:    vocabSize,
		startTokenID: vocabulary.StartTokenIndex,
		endTokenID:   vocabulary.EndTokenIndex,
		padTokenID:   vocabulary.PadTokenIndex,
		onStart:      newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:       newPriorityHooks[*hookWithName[OnStepFn]](),
		onEnd:        newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// Name of the decoder.
func (d *Decoder) Name() string { return d.name }

// BeamSize returns the configured number of hypotheses.
func (d *Decoder) BeamSize() int { return d.beamSize }

// VocabSize returns the configured vocabulary size.
func (d *Decoder) VocabSize() int { return d.vocabSize }

// EndTokenID returns the token that finishes a hypothesis.
func (d *Decoder) EndTokenID() int { return d.endTokenID }

// LengthNormalization returns the configured length normalization exponent (alpha).
func (d *Decoder) LengthNormalization() float64 { return d.lengthNormalization }

// WithBeamSize sets the number of hypotheses tracked at every step.
func (d *Decoder) WithBeamSize(beamSize int) *Decoder {
	d.beamSize = beamSize
	return d
}

// WithMaxSteps sets the number of decoding steps.
// If not set, it is taken from the scorer, see MaxOutputLengther.
func (d *Decoder) WithMaxSteps(maxSteps int) *Decoder {
	d.maxSteps = maxSteps
	d.maxStepsSet = true
	return d
}

// WithLengthNormalization sets the length normalization exponent alpha used in LengthPenalty.
// 0 disables length normalization.
func (d *Decoder) WithLengthNormalization(alpha float64) *Decoder {
	d.lengthNormalization = alpha
	return d
}

// WithStartTokenID sets the token fed to the scorer in the first step.
func (d *Decoder) WithStartTokenID(id int) *Decoder {
	d.startTokenID = id
	return d
}

// WithEndTokenID sets the token that finishes a hypothesis.
func (d *Decoder) WithEndTokenID(id int) *Decoder {
	d.endTokenID = id
	return d
}

// WithPadTokenID sets the only token finished hypotheses can be extended with.
func (d *Decoder) WithPadTokenID(id int) *Decoder {
	d.padTokenID = id
	return d
}

// FromParams configures the decoder with hyperparameters found in the scope named after the
// decoder (or its parent scopes). Parameters not set are left unchanged.
//
// Supported hyperparameters: ParamBeamSize, ParamMaxSteps, ParamLengthNormalization,
// ParamStartTokenID, ParamEndTokenID and ParamPadTokenID. A ParamMaxSteps of 0 leaves the number
// of steps to the scorer's MaxOutputLength.
func (d *Decoder) FromParams(p *params.Params) *Decoder {
	if d.name != "" {
		p = p.In(d.name)
	}
	d.beamSize = params.GetParamOr(p, ParamBeamSize, d.beamSize)
	if maxSteps := params.GetParamOr(p, ParamMaxSteps, 0); maxSteps != 0 {
		d.WithMaxSteps(maxSteps)
	}
	d.lengthNormalization = params.GetParamOr(p, ParamLengthNormalization, d.lengthNormalization)
	d.startTokenID = params.GetParamOr(p, ParamStartTokenID, d.startTokenID)
	d.endTokenID = params.GetParamOr(p, ParamEndTokenID, d.endTokenID)
	d.padTokenID = params.GetParamOr(p, ParamPadTokenID, d.padTokenID)
	return d
}

// MaxSteps returns the number of steps Decode will run, resolving the default from the scorer.
// It returns 0 if it is not set and the scorer doesn't provide it.
func (d *Decoder) MaxSteps() int {
	if d.maxStepsSet {
		return d.maxSteps
	}
	if lengther, ok := d.scorer.(MaxOutputLengther); ok {
		return lengther.MaxOutputLength()
	}
	return 0
}

// resolve validates the configuration and the initial state.
func (d *Decoder) resolve(initial *InitialState) (*settings, error) {
	if d.scorer == nil {
		return nil, errors.New("no StepScorer configured")
	}
	if d.beamSize <= 0 {
		return nil, errors.Errorf("beam size must be > 0, got %d", d.beamSize)
	}
	if d.vocabSize <= 0 {
		return nil, errors.Errorf("vocabulary size must be > 0, got %d", d.vocabSize)
	}
	maxSteps := d.MaxSteps()
	if !d.maxStepsSet && maxSteps == 0 {
		return nil, errors.Errorf("max steps not set, and scorer %T doesn't implement MaxOutputLength()", d.scorer)
	}
	if maxSteps <= 0 {
		return nil, errors.Errorf("max steps must be > 0, got %d", maxSteps)
	}
	for _, token := range []struct {
		name string
		id   int
	}{{"start", d.startTokenID}, {"end", d.endTokenID}, {"pad", d.padTokenID}} {
		if token.id < 0 || token.id >= d.vocabSize {
			return nil, errors.Errorf("%s token id %d out of range for vocabulary size %d", token.name, token.id, d.vocabSize)
		}
	}
	if initial == nil || len(initial.State) == 0 {
		return nil, errors.New("initial recurrent state must not be empty")
	}
	for ii, context := range initial.Contexts {
		if len(context) == 0 {
			return nil, errors.Errorf("initial attention context #%d must not be empty", ii)
		}
	}
	return &settings{
		beamSize:            d.beamSize,
		maxSteps:            maxSteps,
		vocabSize:           d.vocabSize,
		lengthNormalization: d.lengthNormalization,
		startTokenID:        d.startTokenID,
		endTokenID:          d.endTokenID,
		padTokenID:          d.padTokenID,
	}, nil
}

// Decode runs beam search from the given initial decoder state, for exactly MaxSteps steps.
//
// It returns an error if the configuration is invalid, which is checked before the first step,
// or if the scorer returns results with the wrong shapes or unusable logits. Other panics of the
// scorer, including runtime errors (index out of range, nil dereference), are not caught.
func (d *Decoder) Decode(initial *InitialState) (*Output, error) {
	s, err := d.resolve(initial)
	if err != nil {
		return nil, errors.WithMessagef(err, "beam search decoder %q: invalid configuration", d.name)
	}
	var output *Output
	err = exceptions.TryCatch[error](func() { output = d.decodingLoop(s, initial) })
	var runtimeErr runtime.Error
	if errors.As(err, &runtimeErr) {
		panic(runtimeErr)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "beam search decoder %q", d.name)
	}
	return output, nil
}

// MustDecode is like Decode, but panics on error.
func (d *Decoder) MustDecode(initial *InitialState) *Output {
	output, err := d.Decode(initial)
	if err != nil {
		panic(err)
	}
	return output
}

func (d *Decoder) decodingLoop(s *settings, initial *InitialState) *Output {
	startTime := time.Now()
	klog.V(1).Infof("beam search %q: beam_size=%d, max_steps=%d, vocab_size=%d, length_normalization=%g",
		d.name, s.beamSize, s.maxSteps, s.vocabSize, s.lengthNormalization)

	state := NewSearchState(s.beamSize, s.startTokenID, initial)
	log := newOutputLog(s.maxSteps)
	for hook := range d.onStart.All() {
		hook.fn(d, s.maxSteps)
	}

	for step := 0; step < s.maxSteps; step++ {
		in := &StepInput{
			Step:     step,
			States:   state.LastState,
			Contexts: state.LastContexts,
			TokenIDs: state.LastTokenIDs,
		}
		scored := d.scorer.Step(in)
		s.checkStepOutput(in, scored, state.Finished)

		var record SearchStepOutput
		state, record = s.rankStep(state, scored)
		log.append(record)
		if klog.V(2).Enabled() {
			klog.Infof("beam search %q: step %d, best score %g, %d/%d finished",
				d.name, step, record.Scores[0], state.NumFinished(), s.beamSize)
		}
		for hook := range d.onStep.All() {
			hook.fn(d, step, state, record)
		}
	}

	output := log.stack(s.beamSize)
	for hook := range d.onEnd.All() {
		hook.fn(d, output)
	}
	klog.V(1).Infof("beam search %q: %d steps in %s", d.name, s.maxSteps, time.Since(startTime))
	return output
}
