// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/scorer"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/vocabulary"
	"github.com/sanjeeku/neuralmonkey/ui/commandline"
)

func TestRunRNN(t *testing.T) {
	p := createDefaultParams()
	_, err := commandline.ParseSettings(p, "beam_size=3;decoder/max_output_length=6;state_size=8;context_size=4;embedding_size=4")
	require.NoError(t, err)
	vocab := vocabulary.New([]string{"the", "cat", "sat", "on", "mat"})
	outputDir := t.TempDir()
	cfg := &config{
		params:      p,
		decoderName: "decoder",
		vocab:       vocab,
		vocabSize:   vocab.Size(),
		numInputs:   5,
		sourceLen:   3,
		seed:        7,
		parallelism: 2,
		outputDir:   outputDir,
	}
	jobs, err := cfg.createJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 5)
	require.NoError(t, cfg.run(context.Background(), jobs))
	assert.Equal(t, 5*6, totalSteps(jobs))

	for _, j := range jobs {
		require.NotNil(t, j.output)
		assert.Equal(t, 3, j.output.BeamSize())
		assert.Equal(t, 6, j.output.Steps())

		contents, err := os.ReadFile(filepath.Join(outputDir, outputFileName(j)))
		require.NoError(t, err)
		var saved savedOutput
		require.NoError(t, json.Unmarshal(contents, &saved))
		assert.Equal(t, j.id.String(), saved.ID)
		assert.Equal(t, j.index, saved.Input)
		assert.Equal(t, j.output.TokenIDs, saved.TokenIDs)
		assert.Len(t, saved.Scores, 6)
		_, tokens, score := j.output.Best()
		assert.Equal(t, score, saved.Best.Score)
		assert.Equal(t, vocab.Sentence(saved.Best.Tokens), saved.Best.Text)
		assert.Equal(t, tokens[:len(saved.Best.Tokens)], saved.Best.Tokens)
	}

	// Same seed, same results.
	again, err := cfg.createJobs()
	require.NoError(t, err)
	cfg.outputDir = ""
	require.NoError(t, cfg.run(context.Background(), again))
	for ii := range jobs {
		assert.Equal(t, jobs[ii].output.TokenIDs, again[ii].output.TokenIDs)
	}
}

func TestRunTable(t *testing.T) {
	table, err := scorer.NewTable([][]float64{{-5, -5, 0, -1}, {-5, -5, -1, 0}})
	require.NoError(t, err)
	cfg := &config{
		params:      createDefaultParams(),
		decoderName: "decoder",
		vocabSize:   table.VocabSize(),
		table:       table,
		numInputs:   2,
	}
	_, err = commandline.ParseSettings(cfg.params, "decoder/max_steps=4;beam_size=2")
	require.NoError(t, err)
	jobs, err := cfg.createJobs()
	require.NoError(t, err)
	require.NoError(t, cfg.run(context.Background(), jobs))
	for _, j := range jobs {
		assert.Equal(t, 4, j.output.Steps())
		_, tokens, _ := j.output.Best()
		assert.Equal(t, []int{2, 0, 0, 0}, tokens)
	}
}

// TestSavedTextStopsAtEndToken: the text of the best hypothesis stops at the configured end
// token, even when it is a regular word of the vocabulary.
func TestSavedTextStopsAtEndToken(t *testing.T) {
	vocab := vocabulary.New([]string{"hello", "world"})
	hello, world := vocab.ID("hello"), vocab.ID("world")
	table, err := scorer.NewTable(
		[][]float64{{-5, -5, -5, -5, -5, 0}},
		[][]float64{{-5, -5, -5, -5, 0, -5}})
	require.NoError(t, err)
	require.Equal(t, vocab.Size(), table.VocabSize())
	outputDir := t.TempDir()
	cfg := &config{
		params:      createDefaultParams(),
		decoderName: "decoder",
		vocab:       vocab,
		vocabSize:   vocab.Size(),
		table:       table,
		numInputs:   1,
		outputDir:   outputDir,
	}
	_, err = commandline.ParseSettings(cfg.params, fmt.Sprintf("decoder/max_steps=3;beam_size=2;decoder/end_token_id=%d", hello))
	require.NoError(t, err)
	jobs, err := cfg.createJobs()
	require.NoError(t, err)
	require.NoError(t, cfg.run(context.Background(), jobs))

	_, tokens, _ := jobs[0].output.Best()
	assert.Equal(t, []int{world, hello, vocabulary.PadTokenIndex}, tokens)
	contents, err := os.ReadFile(filepath.Join(outputDir, outputFileName(jobs[0])))
	require.NoError(t, err)
	var saved savedOutput
	require.NoError(t, json.Unmarshal(contents, &saved))
	assert.Equal(t, []int{world}, saved.Best.Tokens)
	assert.Equal(t, "world", saved.Best.Text)
}

func TestRunErrors(t *testing.T) {
	t.Run("NoInputs", func(t *testing.T) {
		cfg := &config{params: createDefaultParams(), decoderName: "decoder", vocabSize: 10}
		_, err := cfg.createJobs()
		assert.ErrorContains(t, err, "number of inputs must be > 0")
	})

	t.Run("InvalidDecoder", func(t *testing.T) {
		cfg := &config{params: createDefaultParams(), decoderName: "decoder", vocabSize: 10, numInputs: 3, sourceLen: 2}
		_, err := commandline.ParseSettings(cfg.params, "decoder/end_token_id=10")
		require.NoError(t, err)
		jobs, err := cfg.createJobs()
		require.NoError(t, err)
		err = cfg.run(context.Background(), jobs)
		require.Error(t, err)
		assert.ErrorContains(t, err, "end token id 10 out of range")
	})

	t.Run("InvalidScorer", func(t *testing.T) {
		cfg := &config{params: createDefaultParams(), decoderName: "decoder", vocabSize: 10, numInputs: 1, sourceLen: 2}
		_, err := commandline.ParseSettings(cfg.params, "state_size=0")
		require.NoError(t, err)
		_, err = cfg.createJobs()
		assert.ErrorContains(t, err, "state size must be > 0")
	})
}
