// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/beamsearch"
)

// ProgressBarName is the name of the hooks attached to the Decoder.
const ProgressBarName = "neuralmonkey.ui.commandline.progressBar"

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// ProgressBar displays the progress of one or more decodes run with the same Decoder,
// possibly concurrently, along with a table of statistics.
type ProgressBar struct {
	numDecodes int
	writer     io.Writer
	start      time.Time

	createOnce sync.Once
	bar        atomic.Pointer[progressbar.ProgressBar]

	stepsDone, decodesDone atomic.Int64

	// lipgloss-based asynchronous display.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	linesDrawn       int
	updates          chan struct{}
	closeOnce        sync.Once
	asyncUpdatesDone sync.WaitGroup
}

// AttachProgressBar creates a commandline progress bar for numDecodes decodes, and attaches it
// to the decoder's hooks.
//
// Call ProgressBar.Done once all decodes finished.
func AttachProgressBar(decoder *beamsearch.Decoder, numDecodes int) *ProgressBar {
	return NewProgressBar(numDecodes, os.Stdout).Attach(decoder)
}

// NewProgressBar creates a progress bar for numDecodes decodes writing to w. It starts displaying once
// one of the decoders it is attached to starts.
//
// Call ProgressBar.Done once all decodes finished.
func NewProgressBar(numDecodes int, w io.Writer) *ProgressBar {
	pBar := &ProgressBar{
		numDecodes:    numDecodes,
		writer:        w,
		start:         time.Now(),
		isFirstOutput: true,
		termenv:       termenv.NewOutput(w),
		statsStyle:    lipgloss.NewStyle().PaddingLeft(8),
		updates:       make(chan struct{}, 1),
	}
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawUpdates()
	return pBar
}

// Attach the progress bar to the decoder's hooks. It can be attached to several decoders, as long
// as they all run the same number of steps.
func (pBar *ProgressBar) Attach(decoder *beamsearch.Decoder) *ProgressBar {
	decoder.OnStart(ProgressBarName, 0, pBar.onStart)
	decoder.OnStep(ProgressBarName, 0, pBar.onStep)
	decoder.OnEnd(ProgressBarName, 0, pBar.onEnd)
	return pBar
}

func (pBar *ProgressBar) onStart(_ *beamsearch.Decoder, maxSteps int) {
	pBar.createOnce.Do(func() {
		pBar.bar.Store(progressbar.NewOptions(pBar.numDecodes*maxSteps,
			progressbar.OptionSetDescription("      [bold]"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("steps"),
			progressbar.OptionSetTheme(ProgressbarStyle),
			progressbar.OptionSetWriter(pBar.writer),
		))
	})
}

func (pBar *ProgressBar) onStep(_ *beamsearch.Decoder, _ int, _ *beamsearch.SearchState, _ beamsearch.SearchStepOutput) {
	pBar.stepsDone.Add(1)
	pBar.notify()
}

func (pBar *ProgressBar) onEnd(_ *beamsearch.Decoder, _ *beamsearch.Output) {
	pBar.decodesDone.Add(1)
	pBar.notify()
}

// notify the drawing goroutine without blocking: pending updates are coalesced.
func (pBar *ProgressBar) notify() {
	select {
	case pBar.updates <- struct{}{}:
	default:
	}
}

func (pBar *ProgressBar) drawUpdates() {
	defer pBar.asyncUpdatesDone.Done()
	for range pBar.updates {
		pBar.draw()
		time.Sleep(maxUpdateFrequency)
	}
}

func (pBar *ProgressBar) draw() {
	bar := pBar.bar.Load()
	if bar == nil {
		return
	}
	steps := pBar.stepsDone.Load()
	elapsed := time.Since(pBar.start)
	pBar.statsTable.Data(lgtable.NewStringData())
	pBar.statsTable.Row("Decodes", fmt.Sprintf("%s of %s",
		humanize.Comma(pBar.decodesDone.Load()), humanize.Comma(int64(pBar.numDecodes))))
	pBar.statsTable.Row("Steps", humanize.Comma(steps))
	pBar.statsTable.Row("Elapsed", elapsed.Round(time.Millisecond).String())
	if steps > 0 {
		pBar.statsTable.Row("Steps/s", humanize.FormatFloat("#,###.##", float64(steps)/elapsed.Seconds()))
	}

	// Clear the previous lines that will be overwritten: the table, the progress bar and an empty line.
	rendered := pBar.statsStyle.Render(pBar.statsTable.String())
	pBar.termenv.HideCursor()
	if !pBar.isFirstOutput {
		pBar.termenv.CursorPrevLine(pBar.linesDrawn)
	}
	pBar.isFirstOutput = false
	pBar.linesDrawn = strings.Count(rendered, "\n") + 1 + 2
	_, _ = fmt.Fprintln(pBar.writer, rendered)
	_ = bar.Set(int(steps))
	_, _ = fmt.Fprintln(pBar.writer)
	pBar.termenv.ShowCursor()
}

// Done stops the asynchronous display, and draws the final state. It is safe to call more than once.
func (pBar *ProgressBar) Done() {
	pBar.closeOnce.Do(func() {
		close(pBar.updates)
		pBar.asyncUpdatesDone.Wait()
		pBar.draw()
		if bar := pBar.bar.Load(); bar != nil {
			_ = bar.Finish()
		}
		pBar.termenv.ShowCursor()
		_, _ = fmt.Fprintln(pBar.writer)
	})
}

// StepsDone returns the number of decoding steps run so far, over all decodes.
func (pBar *ProgressBar) StepsDone() int64 { return pBar.stepsDone.Load() }

// DecodesDone returns the number of decodes finished.
func (pBar *ProgressBar) DecodesDone() int64 { return pBar.decodesDone.Load() }
