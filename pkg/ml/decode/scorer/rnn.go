// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scorer

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/beamsearch"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/params"
)

const (
	// ParamEmbeddingSize is the hyperparameter with the dimension of the token embeddings.
	ParamEmbeddingSize = "embedding_size"

	// ParamStateSize is the hyperparameter with the dimension of the recurrent state.
	ParamStateSize = "state_size"

	// ParamContextSize is the hyperparameter with the dimension of the encoder states.
	ParamContextSize = "context_size"

	// ParamMaxOutputLength is the hyperparameter with the maximum output length of the scorer.
	ParamMaxOutputLength = "max_output_length"
)

// RNNConfig holds the dimensions of an RNN scorer.
type RNNConfig struct {
	// VocabSize is the number of output tokens.
	VocabSize int

	// EmbeddingSize is the dimension of the token embeddings.
	EmbeddingSize int

	// StateSize is the dimension of the recurrent state.
	StateSize int

	// ContextSize is the dimension of the encoder states, and hence of the attention context.
	ContextSize int

	// MaxLength is returned by MaxOutputLength.
	MaxLength int
}

// DefaultRNNConfig returns a small configuration for the given vocabulary size.
func DefaultRNNConfig(vocabSize int) RNNConfig {
	return RNNConfig{
		VocabSize:     vocabSize,
		EmbeddingSize: 16,
		StateSize:     32,
		ContextSize:   16,
		MaxLength:     20,
	}
}

// RNNConfigFromParams reads the dimensions from the hyperparameters, using DefaultRNNConfig for
// the ones not set.
func RNNConfigFromParams(p *params.Params, vocabSize int) RNNConfig {
	config := DefaultRNNConfig(vocabSize)
	config.EmbeddingSize = params.GetParamOr(p, ParamEmbeddingSize, config.EmbeddingSize)
	config.StateSize = params.GetParamOr(p, ParamStateSize, config.StateSize)
	config.ContextSize = params.GetParamOr(p, ParamContextSize, config.ContextSize)
	config.MaxLength = params.GetParamOr(p, ParamMaxOutputLength, config.MaxLength)
	return config
}

// Validate checks all dimensions are positive.
func (c RNNConfig) Validate() error {
	for _, dim := range []struct {
		name  string
		value int
	}{
		{"vocabulary size", c.VocabSize},
		{"embedding size", c.EmbeddingSize},
		{"state size", c.StateSize},
		{"context size", c.ContextSize},
		{"max output length", c.MaxLength},
	} {
		if dim.value <= 0 {
			return errors.Errorf("RNN scorer %s must be > 0, got %d", dim.name, dim.value)
		}
	}
	return nil
}

// RNN is an Elman recurrent decoder with dot-product attention over a fixed set of encoder states.
//
// For each hypothesis, given the previous token t, state h and attention context c:
//
//	h' = tanh(Embeddings[t]·InputWeights + h·RecurrentWeights + c·ContextWeights + Bias)
//	weights = softmax(Encoded·(h'·AttentionWeights)ᵀ)
//	c' = weightsᵀ·Encoded
//	logits = h'·OutputStateWeights + c'·OutputContextWeights + OutputBias
//
// It uses exactly one attention context.
type RNN struct {
	config RNNConfig

	Embeddings           *mat.Dense // [VocabSize, EmbeddingSize]
	InputWeights         *mat.Dense // [EmbeddingSize, StateSize]
	RecurrentWeights     *mat.Dense // [StateSize, StateSize]
	ContextWeights       *mat.Dense // [ContextSize, StateSize]
	Bias                 []float64  // [StateSize]
	AttentionWeights     *mat.Dense // [StateSize, ContextSize]
	OutputStateWeights   *mat.Dense // [StateSize, VocabSize]
	OutputContextWeights *mat.Dense // [ContextSize, VocabSize]
	OutputBias           []float64  // [VocabSize]

	// Encoded holds the encoder states attended to, shaped [sourceLength, ContextSize].
	Encoded *mat.Dense

	// InitialProjection maps the mean of the encoder states to the initial recurrent state, shaped [ContextSize, StateSize].
	InitialProjection *mat.Dense
}

var (
	_ beamsearch.StepScorer        = (*RNN)(nil)
	_ beamsearch.MaxOutputLengther = (*RNN)(nil)
)

// NewRandomRNN creates an RNN scorer with weights sampled from a normal distribution scaled by
// 1/sqrt(fanIn), and attending to the given encoder states.
//
// The same seed always generates the same weights.
func NewRandomRNN(config RNNConfig, encoded *mat.Dense, seed uint64) (*RNN, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if encoded == nil {
		return nil, errors.New("RNN scorer requires encoder states")
	}
	if _, cols := encoded.Dims(); cols != config.ContextSize {
		return nil, errors.Errorf("RNN scorer encoder states have dimension %d, expected context size %d", cols, config.ContextSize)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r := &RNN{
		config:               config,
		Embeddings:           randomMatrix(rng, config.VocabSize, config.EmbeddingSize, 1),
		InputWeights:         randomMatrix(rng, config.EmbeddingSize, config.StateSize, config.EmbeddingSize),
		RecurrentWeights:     randomMatrix(rng, config.StateSize, config.StateSize, config.StateSize),
		ContextWeights:       randomMatrix(rng, config.ContextSize, config.StateSize, config.ContextSize),
		Bias:                 make([]float64, config.StateSize),
		AttentionWeights:     randomMatrix(rng, config.StateSize, config.ContextSize, config.StateSize),
		OutputStateWeights:   randomMatrix(rng, config.StateSize, config.VocabSize, config.StateSize+config.ContextSize),
		OutputContextWeights: randomMatrix(rng, config.ContextSize, config.VocabSize, config.StateSize+config.ContextSize),
		OutputBias:           make([]float64, config.VocabSize),
		Encoded:              mat.DenseCopyOf(encoded),
		InitialProjection:    randomMatrix(rng, config.ContextSize, config.StateSize, config.ContextSize),
	}
	return r, nil
}

// RandomEncoded generates sourceLength random encoder states of the given dimension, standing in for
// the output of an encoder.
func RandomEncoded(sourceLength, contextSize int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	return randomMatrix(rng, sourceLength, contextSize, 1)
}

func randomMatrix(rng *rand.Rand, rows, cols, fanIn int) *mat.Dense {
	scale := 1.0 / math.Sqrt(float64(fanIn))
	data := make([]float64, rows*cols)
	for ii := range data {
		data[ii] = rng.NormFloat64() * scale
	}
	return mat.NewDense(rows, cols, data)
}

// Config returns the dimensions of the scorer.
func (r *RNN) Config() RNNConfig {
	return r.config
}

// MaxOutputLength implements beamsearch.MaxOutputLengther.
func (r *RNN) MaxOutputLength() int {
	return r.config.MaxLength
}

// InitialState returns the state before the first step: tanh of the projected mean encoder state,
// and a zero attention context.
func (r *RNN) InitialState() *beamsearch.InitialState {
	sourceLength, _ := r.Encoded.Dims()
	mean := make([]float64, r.config.ContextSize)
	for row := 0; row < sourceLength; row++ {
		floats.Add(mean, r.Encoded.RawRowView(row))
	}
	floats.Scale(1/float64(sourceLength), mean)

	var projected mat.Dense
	projected.Mul(mat.NewDense(1, len(mean), mean), r.InitialProjection)
	state := make([]float64, r.config.StateSize)
	for ii, v := range projected.RawRowView(0) {
		state[ii] = math.Tanh(v)
	}
	return &beamsearch.InitialState{
		State:    state,
		Contexts: [][]float64{make([]float64, r.config.ContextSize)},
	}
}

// Step implements beamsearch.StepScorer.
func (r *RNN) Step(in *beamsearch.StepInput) *beamsearch.StepOutput {
	beamSize := len(in.TokenIDs)
	r.checkInput(in)

	// Embed previous tokens.
	embedded := mat.NewDense(beamSize, r.config.EmbeddingSize, nil)
	for row, tokenID := range in.TokenIDs {
		embedded.SetRow(row, r.Embeddings.RawRowView(tokenID))
	}

	// Recurrent cell.
	var state, term mat.Dense
	state.Mul(embedded, r.InputWeights)
	term.Mul(in.States, r.RecurrentWeights)
	state.Add(&state, &term)
	term.Mul(in.Contexts[0], r.ContextWeights)
	state.Add(&state, &term)
	state.Apply(func(_, j int, v float64) float64 {
		return math.Tanh(v + r.Bias[j])
	}, &state)

	// Attention.
	var query, energies, context mat.Dense
	query.Mul(&state, r.AttentionWeights)
	energies.Mul(&query, r.Encoded.T())
	weights := softmaxRows(&energies)
	context.Mul(weights, r.Encoded)

	// Output projection.
	var logits mat.Dense
	logits.Mul(&state, r.OutputStateWeights)
	term.Reset()
	term.Mul(&context, r.OutputContextWeights)
	logits.Add(&logits, &term)
	for row := 0; row < beamSize; row++ {
		floats.Add(logits.RawRowView(row), r.OutputBias)
	}
	return &beamsearch.StepOutput{
		Logits:   &logits,
		States:   &state,
		Contexts: []*mat.Dense{&context},
	}
}

func (r *RNN) checkInput(in *beamsearch.StepInput) {
	beamSize := len(in.TokenIDs)
	if in.States == nil {
		exceptions.Panicf("RNN scorer: step %d input has no states", in.Step)
	}
	if rows, cols := in.States.Dims(); rows != beamSize || cols != r.config.StateSize {
		exceptions.Panicf("RNN scorer: states shaped [%d, %d], expected [%d, %d]", rows, cols, beamSize, r.config.StateSize)
	}
	if len(in.Contexts) != 1 {
		exceptions.Panicf("RNN scorer: got %d attention contexts, expected 1", len(in.Contexts))
	}
	if rows, cols := in.Contexts[0].Dims(); rows != beamSize || cols != r.config.ContextSize {
		exceptions.Panicf("RNN scorer: context shaped [%d, %d], expected [%d, %d]", rows, cols, beamSize, r.config.ContextSize)
	}
	for row, tokenID := range in.TokenIDs {
		if tokenID < 0 || tokenID >= r.config.VocabSize {
			exceptions.Panicf("RNN scorer: token id %d in row %d out of range for vocabulary size %d", tokenID, row, r.config.VocabSize)
		}
	}
}

// softmaxRows returns a new matrix with the softmax of each row.
func softmaxRows(m *mat.Dense) *mat.Dense {
	probs := beamsearch.LogSoftmax(m)
	probs.Apply(func(_, _ int, v float64) float64 {
		return math.Exp(v)
	}, probs)
	return probs
}
