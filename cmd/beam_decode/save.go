// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/beamsearch"
)

// savedOutput is the JSON representation of a decoded input.
type savedOutput struct {
	ID        string          `json:"id"`
	Input     int             `json:"input"`
	Seed      uint64          `json:"seed"`
	Scores    [][]float64     `json:"scores"`
	ParentIDs [][]int         `json:"parent_ids"`
	TokenIDs  [][]int         `json:"token_ids"`
	Best      savedHypothesis `json:"best"`
}

type savedHypothesis struct {
	Row    int     `json:"row"`
	Score  float64 `json:"score"`
	Tokens []int   `json:"tokens"`
	Text   string  `json:"text,omitempty"`
}

// outputFileName returns the name of the file where the output of the job is saved.
func outputFileName(j *job) string {
	return fmt.Sprintf("output-%04d-%s.json", j.index, j.id)
}

func newSavedOutput(j *job, endTokenID int, text func([]int) string) *savedOutput {
	output := j.output
	saved := &savedOutput{
		ID:        j.id.String(),
		Input:     j.index,
		Seed:      j.seed,
		Scores:    make([][]float64, output.Steps()),
		ParentIDs: output.ParentIDs,
		TokenIDs:  output.TokenIDs,
	}
	for step := range saved.Scores {
		saved.Scores[step] = mat.Row(nil, step, output.Scores)
	}
	row, tokens, score := output.Best()
	saved.Best = savedHypothesis{Row: row, Score: score, Tokens: beamsearch.Trim(tokens, endTokenID)}
	if text != nil {
		saved.Best.Text = text(saved.Best.Tokens)
	}
	return saved
}

// save the output of the job as JSON in the output directory.
func (c *config) save(j *job) error {
	var text func([]int) string
	if c.vocab != nil {
		text = c.vocab.Sentence
	}
	contents, err := json.MarshalIndent(newSavedOutput(j, j.decoder.EndTokenID(), text), "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize output of input #%d", j.index)
	}
	filePath := filepath.Join(c.outputDir, outputFileName(j))
	if err = os.WriteFile(filePath, contents, 0o644); err != nil {
		return errors.Wrapf(err, "failed to save output of input #%d", j.index)
	}
	return nil
}
