// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/beamsearch"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/scorer"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/params"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/vocabulary"
)

// config of a decoding run.
type config struct {
	params      *params.Params
	decoderName string
	vocab       *vocabulary.Vocabulary
	vocabSize   int
	table       *scorer.Table
	numInputs   int
	sourceLen   int
	seed        uint64
	parallelism int
	outputDir   string
}

// job decodes one input with its own decoder.
type job struct {
	index   int
	id      uuid.UUID
	seed    uint64
	decoder *beamsearch.Decoder
	initial *beamsearch.InitialState
	output  *beamsearch.Output
}

// scorerParams returns the hyperparameters in the scope of the decoder.
func (c *config) scorerParams() *params.Params {
	if c.decoderName == "" {
		return c.params
	}
	return c.params.In(c.decoderName)
}

// createJobs creates one decoder per input. All recurrent scorers share the same weights,
// generated from the seed, and each input gets its own random encoder states.
func (c *config) createJobs() ([]*job, error) {
	if c.numInputs <= 0 {
		return nil, errors.Errorf("number of inputs must be > 0, got %d", c.numInputs)
	}
	jobs := make([]*job, c.numInputs)
	for index := range jobs {
		j := &job{
			index: index,
			id:    uuid.New(),
			seed:  c.seed + uint64(index) + 1,
		}
		var stepScorer beamsearch.StepScorer
		if c.table != nil {
			stepScorer = c.table
			j.initial = &beamsearch.InitialState{State: []float64{0}}
		} else {
			rnnConfig := scorer.RNNConfigFromParams(c.scorerParams(), c.vocabSize)
			rnn, err := scorer.NewRandomRNN(rnnConfig, scorer.RandomEncoded(c.sourceLen, rnnConfig.ContextSize, j.seed), c.seed)
			if err != nil {
				return nil, err
			}
			stepScorer = rnn
			j.initial = rnn.InitialState()
		}
		j.decoder = beamsearch.New(c.decoderName, stepScorer, c.vocabSize).FromParams(c.params)
		jobs[index] = j
	}
	klog.V(1).Infof("Created %d decoders: beam size %d, %d steps, length normalization %g",
		len(jobs), jobs[0].decoder.BeamSize(), jobs[0].decoder.MaxSteps(), jobs[0].decoder.LengthNormalization())
	return jobs, nil
}

// run decodes all jobs, at most c.parallelism at a time, and saves their outputs if an output
// directory is configured. It stops at the first error.
func (c *config) run(ctx context.Context, jobs []*job) error {
	g, ctx := errgroup.WithContext(ctx)
	limit := c.parallelism
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g.SetLimit(limit)
	for _, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			output, err := j.decoder.Decode(j.initial)
			if err != nil {
				return errors.WithMessagef(err, "input #%d", j.index)
			}
			j.output = output
			klog.V(2).Infof("Input #%d (%s) decoded", j.index, j.id)
			if c.outputDir != "" {
				return c.save(j)
			}
			return nil
		})
	}
	return g.Wait()
}

// totalSteps returns the number of steps run over all decoded jobs.
func totalSteps(jobs []*job) (steps int) {
	for _, j := range jobs {
		if j.output != nil {
			steps += j.output.Steps()
		}
	}
	return
}
