// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scorer

import (
	"math"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/beamsearch"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/params"
)

var testRNNConfig = RNNConfig{
	VocabSize:     11,
	EmbeddingSize: 5,
	StateSize:     7,
	ContextSize:   3,
	MaxLength:     6,
}

func newTestRNN(t *testing.T, seed uint64) *RNN {
	r, err := NewRandomRNN(testRNNConfig, RandomEncoded(4, testRNNConfig.ContextSize, seed), seed)
	require.NoError(t, err)
	return r
}

func TestRNNConfig(t *testing.T) {
	require.NoError(t, testRNNConfig.Validate())
	config := testRNNConfig
	config.StateSize = 0
	assert.ErrorContains(t, config.Validate(), "state size must be > 0")

	_, err := NewRandomRNN(testRNNConfig, nil, 1)
	assert.ErrorContains(t, err, "requires encoder states")
	_, err = NewRandomRNN(testRNNConfig, RandomEncoded(4, 2, 1), 1)
	assert.ErrorContains(t, err, "dimension 2, expected context size 3")
}

func TestRNNConfigFromParams(t *testing.T) {
	p := params.New()
	p.Set(ParamStateSize, 8)
	p.In("rnn").Set(ParamMaxOutputLength, 3)
	config := RNNConfigFromParams(p.In("rnn"), 50)
	want := DefaultRNNConfig(50)
	want.StateSize = 8
	want.MaxLength = 3
	assert.Equal(t, want, config)
	require.NoError(t, config.Validate())
}

func TestRNNDeterministicWeights(t *testing.T) {
	r0, r1, r2 := newTestRNN(t, 42), newTestRNN(t, 42), newTestRNN(t, 43)
	assert.True(t, mat.Equal(r0.Embeddings, r1.Embeddings))
	assert.True(t, mat.Equal(r0.OutputStateWeights, r1.OutputStateWeights))
	assert.False(t, mat.Equal(r0.Embeddings, r2.Embeddings))
	assert.Equal(t, testRNNConfig, r0.Config())
	assert.Equal(t, 6, r0.MaxOutputLength())
}

func TestRNNInitialState(t *testing.T) {
	r := newTestRNN(t, 1)
	initial := r.InitialState()
	require.Len(t, initial.State, testRNNConfig.StateSize)
	for _, v := range initial.State {
		assert.True(t, v > -1 && v < 1, "tanh output out of range: %g", v)
	}
	require.Len(t, initial.Contexts, 1)
	assert.Equal(t, make([]float64, testRNNConfig.ContextSize), initial.Contexts[0])
}

func TestRNNStep(t *testing.T) {
	r := newTestRNN(t, 7)
	initial := r.InitialState()
	state := beamsearch.NewSearchState(3, 1, initial)
	state.LastTokenIDs = []int{1, 4, 9}
	in := &beamsearch.StepInput{
		Step:     0,
		States:   state.LastState,
		Contexts: state.LastContexts,
		TokenIDs: state.LastTokenIDs,
	}
	statesBefore := mat.DenseCopyOf(in.States)
	out := r.Step(in)
	assert.True(t, mat.Equal(statesBefore, in.States), "input states were modified")

	rows, cols := out.Logits.Dims()
	assert.Equal(t, []int{3, testRNNConfig.VocabSize}, []int{rows, cols})
	rows, cols = out.States.Dims()
	assert.Equal(t, []int{3, testRNNConfig.StateSize}, []int{rows, cols})
	require.Len(t, out.Contexts, 1)
	rows, cols = out.Contexts[0].Dims()
	assert.Equal(t, []int{3, testRNNConfig.ContextSize}, []int{rows, cols})

	// Different previous tokens give different logits, while the same inputs give the same.
	assert.False(t, floats.Equal(out.Logits.RawRowView(0), out.Logits.RawRowView(1)))
	again := r.Step(in)
	assert.True(t, mat.Equal(out.Logits, again.Logits))

	// Contexts are convex combinations of encoder states: bounded by their per-column extremes.
	sourceLength, _ := r.Encoded.Dims()
	for col := 0; col < testRNNConfig.ContextSize; col++ {
		column := mat.Col(nil, col, r.Encoded)
		require.Len(t, column, sourceLength)
		low, high := floats.Min(column), floats.Max(column)
		for row := 0; row < 3; row++ {
			v := out.Contexts[0].At(row, col)
			assert.True(t, v >= low-1e-9 && v <= high+1e-9)
		}
	}
	for _, v := range out.Logits.RawMatrix().Data {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestRNNStepInvalidInput(t *testing.T) {
	r := newTestRNN(t, 3)
	initial := r.InitialState()
	state := beamsearch.NewSearchState(2, 1, initial)
	in := func() *beamsearch.StepInput {
		return &beamsearch.StepInput{States: state.LastState, Contexts: state.LastContexts, TokenIDs: []int{1, 1}}
	}
	check := func(t *testing.T, in *beamsearch.StepInput, want string) {
		err := exceptions.TryCatch[error](func() { r.Step(in) })
		require.Error(t, err)
		assert.ErrorContains(t, err, want)
	}

	t.Run("TokenOutOfRange", func(t *testing.T) {
		bad := in()
		bad.TokenIDs = []int{1, 11}
		check(t, bad, "token id 11 in row 1 out of range")
	})
	t.Run("StateShape", func(t *testing.T) {
		bad := in()
		bad.States = mat.NewDense(2, 2, nil)
		check(t, bad, "states shaped [2, 2], expected [2, 7]")
	})
	t.Run("NumContexts", func(t *testing.T) {
		bad := in()
		bad.Contexts = nil
		check(t, bad, "got 0 attention contexts, expected 1")
	})
}

func TestRNNDecode(t *testing.T) {
	r := newTestRNN(t, 11)
	decoder := beamsearch.New("rnn", r, r.Config().VocabSize).WithBeamSize(4).WithLengthNormalization(0.6)
	output, err := decoder.Decode(r.InitialState())
	require.NoError(t, err)
	assert.Equal(t, r.MaxOutputLength(), output.Steps())
	assert.Equal(t, 4, output.BeamSize())

	// Same model and input, same result.
	again, err := decoder.Decode(r.InitialState())
	require.NoError(t, err)
	assert.Equal(t, output.TokenIDs, again.TokenIDs)
	assert.Equal(t, output.ParentIDs, again.ParentIDs)
}
