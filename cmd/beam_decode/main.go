// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// beam_decode runs beam search decoding over a number of inputs and prints the resulting
// hypotheses.
//
// By default, each input is a set of random encoder states decoded with a randomly initialized
// recurrent decoder with attention. With -table, a scripted table of logits (JSON) is used
// instead, useful to reproduce search behavior.
//
// Example:
//
//	beam_decode -vocab words.txt -num_inputs 8 -set "beam_size=8;decoder/length_normalization=0.6"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/beamsearch"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/scorer"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/params"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/vocabulary"
	"github.com/sanjeeku/neuralmonkey/pkg/support/fsutil"
	"github.com/sanjeeku/neuralmonkey/ui/commandline"
)

var (
	flagTable = flag.String("table", "", "JSON file with a scripted table of logits to use as scorer. "+
		"If not set, a randomly initialized recurrent decoder with attention is used.")
	flagVocab = flag.String("vocab", "", "File with the vocabulary, one word per line. "+
		"If not set, token ids are printed.")
	flagVocabSize  = flag.Int("vocab_size", 32, "Vocabulary size of the recurrent decoder, if no -vocab is given.")
	flagSeed       = flag.Uint64("seed", 42, "Seed for the random weights and encoder states.")
	flagNumInputs  = flag.Int("num_inputs", 4, "Number of inputs to decode.")
	flagSourceLen  = flag.Int("source_length", 10, "Number of encoder states of each random input.")
	flagParallel   = flag.Int("parallelism", 0, "Number of inputs decoded concurrently. If <= 0, it uses the number of CPUs.")
	flagOutputDir  = flag.String("output_dir", "", "If set, each output is saved as JSON in this directory.")
	flagProgress   = flag.Bool("progress", false, "Display a progress bar while decoding.")
	flagQuiet      = flag.Bool("quiet", false, "Don't print the hypotheses.")
	flagDecoder    = flag.String("decoder", "decoder", "Name of the decoder: its hyperparameters are read from this scope.")

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 0, 0, 0)
)

// createDefaultParams with the hyperparameters accepted by -set, and their default values.
func createDefaultParams() *params.Params {
	p := params.New()
	p.SetParams(map[string]any{
		beamsearch.ParamBeamSize:            4,
		beamsearch.ParamMaxSteps:            0,
		beamsearch.ParamLengthNormalization: 0.0,
		beamsearch.ParamStartTokenID:        vocabulary.StartTokenIndex,
		beamsearch.ParamEndTokenID:          vocabulary.EndTokenIndex,
		beamsearch.ParamPadTokenID:          vocabulary.PadTokenIndex,
		scorer.ParamEmbeddingSize:           16,
		scorer.ParamStateSize:               32,
		scorer.ParamContextSize:             16,
		scorer.ParamMaxOutputLength:         20,
	})
	return p
}

func main() {
	klog.InitFlags(nil)
	p := createDefaultParams()
	settings := commandline.CreateSettingsFlag(p, "")
	flag.Parse()

	paramsSet, err := commandline.ParseSettings(p, *settings)
	if err != nil {
		klog.Fatalf("Failed to parse -set=%q: %+v", *settings, err)
	}
	if len(paramsSet) > 0 {
		klog.V(1).Infof("Hyperparameters set:\n%s", commandline.SprintModifiedSettings(p, paramsSet))
	}

	cfg := &config{
		params:      p,
		decoderName: *flagDecoder,
		numInputs:   *flagNumInputs,
		sourceLen:   *flagSourceLen,
		seed:        *flagSeed,
		parallelism: *flagParallel,
		outputDir:   *flagOutputDir,
	}
	if *flagVocab != "" {
		cfg.vocab = must.M1(vocabulary.Load(*flagVocab))
	}
	switch {
	case *flagTable != "":
		cfg.table = must.M1(scorer.LoadTable(*flagTable))
		cfg.vocabSize = cfg.table.VocabSize()
	case cfg.vocab != nil:
		cfg.vocabSize = cfg.vocab.Size()
	default:
		cfg.vocabSize = *flagVocabSize
	}
	if cfg.vocab != nil && cfg.vocab.Size() != cfg.vocabSize {
		klog.Fatalf("Vocabulary in %q has %d words, but the scorer table has %d logits per row", *flagVocab, cfg.vocab.Size(), cfg.vocabSize)
	}
	if cfg.outputDir != "" {
		cfg.outputDir = must.M1(fsutil.MkdirAll(cfg.outputDir))
	}

	jobs, err := cfg.createJobs()
	if err != nil {
		klog.Fatalf("Failed to configure decoders: %+v", err)
	}
	var pBar *commandline.ProgressBar
	if *flagProgress {
		pBar = commandline.NewProgressBar(len(jobs), os.Stdout)
		for _, j := range jobs {
			pBar.Attach(j.decoder)
		}
	}

	start := time.Now()
	err = cfg.run(context.Background(), jobs)
	if pBar != nil {
		pBar.Done()
	}
	if err != nil {
		klog.Fatalf("Decoding failed: %+v", err)
	}
	elapsed := time.Since(start)

	if !*flagQuiet {
		for _, j := range jobs {
			fmt.Println(commandline.NewHypothesesTable(os.Stdout, cfg.vocab).
				WithTitle(titleStyle.Render(fmt.Sprintf("Input #%d", j.index))).
				Render(j.output, j.decoder.EndTokenID()))
		}
	}
	fmt.Printf("\nDecoded %s inputs (%s steps) in %s\n",
		humanize.Comma(int64(len(jobs))), humanize.Comma(int64(totalSteps(jobs))), elapsed.Round(time.Millisecond))
}
