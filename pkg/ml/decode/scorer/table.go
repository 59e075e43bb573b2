// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scorer provides step scorers for beam search: a scripted Table, useful to reproduce
// and test search behavior, and a small recurrent decoder with attention, RNN.
package scorer

import (
	"encoding/json"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/beamsearch"
	"github.com/sanjeeku/neuralmonkey/pkg/support/fsutil"
)

// Table is a scripted scorer: it returns pre-defined logits for each step, and leaves the
// recurrent states and attention contexts unchanged.
//
// Steps[step][row] holds the logits for the hypothesis in the given row. If there are more
// hypotheses than rows, rows are reused cyclically (row i uses Steps[step][i % len(Steps[step])]),
// and likewise for steps.
type Table struct {
	Steps [][][]float64 `json:"steps"`

	// MaxLength, if > 0, is returned by MaxOutputLength. Otherwise it is the number of scripted steps.
	MaxLength int `json:"max_length,omitempty"`
}

var _ beamsearch.StepScorer = (*Table)(nil)

// NewTable creates a Table with the given logits per step, and validates it.
func NewTable(steps ...[][]float64) (*Table, error) {
	t := &Table{Steps: steps}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTable reads a Table from a JSON file, in the format:
//
//	{"steps": [[[0, -1, -2], [-1, 0, -2]], [[...]]], "max_length": 10}
//
// Logits can't be infinite in JSON: use large negative numbers instead.
func LoadTable(filePath string) (*Table, error) {
	contents, err := fsutil.ReadFile(filePath, "scorer table")
	if err != nil {
		return nil, err
	}
	t := &Table{}
	if err = json.Unmarshal(contents, t); err != nil {
		return nil, errors.Wrapf(err, "failed to parse scorer table in %q", filePath)
	}
	if err = t.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid scorer table in %q", filePath)
	}
	return t, nil
}

// Validate checks that there is at least one step, every step has at least one row, and all
// rows have the same (non-zero) vocabulary size.
func (t *Table) Validate() error {
	if len(t.Steps) == 0 {
		return errors.New("scorer table has no steps")
	}
	vocabSize := 0
	for step, rows := range t.Steps {
		if len(rows) == 0 {
			return errors.Errorf("scorer table step %d has no rows", step)
		}
		for row, logits := range rows {
			if vocabSize == 0 {
				vocabSize = len(logits)
			}
			if len(logits) == 0 || len(logits) != vocabSize {
				return errors.Errorf("scorer table step %d row %d has %d logits, expected %d", step, row, len(logits), vocabSize)
			}
		}
	}
	return nil
}

// VocabSize returns the number of logits per row.
func (t *Table) VocabSize() int {
	return len(t.Steps[0][0])
}

// MaxOutputLength implements beamsearch.MaxOutputLengther.
func (t *Table) MaxOutputLength() int {
	if t.MaxLength > 0 {
		return t.MaxLength
	}
	return len(t.Steps)
}

// Step implements beamsearch.StepScorer.
func (t *Table) Step(in *beamsearch.StepInput) *beamsearch.StepOutput {
	if in.States == nil {
		exceptions.Panicf("scorer.Table: step %d input has no states", in.Step)
	}
	rows := t.Steps[in.Step%len(t.Steps)]
	beamSize := len(in.TokenIDs)
	logits := mat.NewDense(beamSize, t.VocabSize(), nil)
	for row := 0; row < beamSize; row++ {
		logits.SetRow(row, rows[row%len(rows)])
	}
	return &beamsearch.StepOutput{
		Logits:   logits,
		States:   mat.DenseCopyOf(in.States),
		Contexts: copyAll(in.Contexts),
	}
}

func copyAll(matrices []*mat.Dense) []*mat.Dense {
	copies := make([]*mat.Dense, len(matrices))
	for ii, m := range matrices {
		copies[ii] = mat.DenseCopyOf(m)
	}
	return copies
}
