// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI tools for decoding from the command line.
package commandline

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/beamsearch"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/vocabulary"
	"github.com/sanjeeku/neuralmonkey/pkg/support/xslices"
)

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// HypothesesTable renders the final hypotheses of a beam search output as a table with their row,
// score and text, best first.
type HypothesesTable struct {
	renderer *lipgloss.Renderer
	vocab    *vocabulary.Vocabulary
	title    string
}

// NewHypothesesTable creates a HypothesesTable that writes to w, detecting its color support.
// If vocab is nil, token ids are printed instead of words.
func NewHypothesesTable(w io.Writer, vocab *vocabulary.Vocabulary) *HypothesesTable {
	return &HypothesesTable{
		renderer: lipgloss.NewRenderer(w, termenv.WithColorCache(true)),
		vocab:    vocab,
	}
}

// WithTitle sets a title printed above the table.
func (h *HypothesesTable) WithTitle(title string) *HypothesesTable {
	h.title = title
	return h
}

// Render the hypotheses in output. endTokenID is used to trim the hypotheses.
func (h *HypothesesTable) Render(output *beamsearch.Output, endTokenID int) string {
	scores := output.FinalScores()
	rows := xslices.Iota(0, len(scores))
	slices.SortStableFunc(rows, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})

	headerStyle := h.renderer.NewStyle().Bold(true).Padding(0, 1)
	bestStyle := h.renderer.NewStyle().Foreground(lipgloss.Color("#50B050")).Padding(0, 1)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(h.renderer.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		Headers("Row", "Score", "Hypothesis").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col == 2 && row == 0:
				return bestStyle
			case col < 2:
				return rightAlignedStyle
			}
			return normalStyle
		})
	for _, row := range rows {
		tokens := beamsearch.Trim(output.Hypothesis(row), endTokenID)
		table.Row(fmt.Sprintf("%d", row), fmt.Sprintf("%.4f", scores[row]), h.text(tokens))
	}

	var sb strings.Builder
	if h.title != "" {
		sb.WriteString(h.renderer.NewStyle().Bold(true).Render(h.title))
		sb.WriteString("\n")
	}
	sb.WriteString(table.String())
	return sb.String()
}

func (h *HypothesesTable) text(tokens []int) string {
	if h.vocab != nil {
		return h.vocab.Sentence(tokens)
	}
	return strings.Join(xslices.Map(tokens, func(token int) string { return fmt.Sprintf("%d", token) }), " ")
}
