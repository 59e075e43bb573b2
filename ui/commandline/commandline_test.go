// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/decode/beamsearch"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/params"
	"github.com/sanjeeku/neuralmonkey/pkg/ml/vocabulary"
)

func createTestParams() *params.Params {
	p := params.New()
	p.Set("x", 11.0)
	p.Set("y", 7)
	p.Set("z", false)
	p.Set("s", "foo")
	p.Set("list_int", []int{})
	p.Set("list_float", []float64{})
	p.Set("list_str", []string{})
	return p
}

func TestParseSettings(t *testing.T) {
	p := createTestParams()

	paramsSet, err := ParseSettings(p, "x=13;/a/z=true;a/b/y=3_000;s=bar;list_int=1,3,7;list_float=0.1,1.2,3e3;list_str=a,b;")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "/a/z", "/a/b/y", "s", "list_int", "list_float", "list_str"}, paramsSet)
	x, found := p.Get("x")
	assert.True(t, found)
	assert.Equal(t, 13.0, x.(float64))

	y, found := p.Get("y")
	assert.True(t, found)
	assert.Equal(t, 7, y)
	y, _ = p.In("a").Get("y")
	assert.Equal(t, 7, y)
	y, _ = p.In("a").In("b").Get("y")
	assert.Equal(t, 3000, y)

	z, _ := p.Get("z")
	assert.False(t, z.(bool))
	z, _ = p.In("a").Get("z")
	assert.True(t, z.(bool))

	s, _ := p.Get("s")
	assert.Equal(t, "bar", s.(string))

	assert.Equal(t, []int{1, 3, 7}, params.GetParamOr(p, "list_int", []int{}))
	assert.Equal(t, []float64{0.1, 1.2, 3e3}, params.GetParamOr(p, "list_float", []float64{}))
	assert.Equal(t, []string{"a", "b"}, params.GetParamOr(p, "list_str", []string{}))

	modified := SprintModifiedSettings(p, paramsSet)
	assert.Contains(t, modified, `"/a/b/y": (int) 3000`)
	assert.Contains(t, SprintSettings(p), `"/x": (float64) 13`)
}

func TestParseSettingsErrors(t *testing.T) {
	p := createTestParams()
	for _, tc := range []struct {
		name, settings, wantErr string
	}{
		{"Unknown", "q=3", "not known in the root scope"},
		{"WrongType", "y=3.14", "failed to parse value"},
		{"NoValue", "x", "requires the format"},
		{"NoName", "/a/=1", "missing parameter name"},
		{"MissingFile", "file:" + filepath.Join(t.TempDir(), "missing.txt"), "failed to read settings"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSettings(p, tc.settings)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}

	// Known only in a sub-scope is still unknown.
	p.In("c").Set("q", 13)
	_, err := ParseSettings(p, "q=3")
	require.Error(t, err)
}

func TestParseSettingsFromFile(t *testing.T) {
	p := createTestParams()
	filePath := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("# Comment\nx=1.5\n\ny=2;decoder/y=4\n"), 0o644))
	paramsSet, err := ParseSettings(p, "s=baz;file:"+filePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "x", "y", "/decoder/y"}, paramsSet)
	assert.Equal(t, 1.5, params.MustGetParam[float64](p, "x"))
	assert.Equal(t, 2, params.MustGetParam[int](p, "y"))
	assert.Equal(t, 4, params.MustGetParam[int](p.In("decoder"), "y"))
}

func TestSettingsConfigureDecoder(t *testing.T) {
	p := params.New()
	p.Set(beamsearch.ParamBeamSize, 4)
	p.Set(beamsearch.ParamMaxSteps, 0)
	p.Set(beamsearch.ParamLengthNormalization, 0.0)
	_, err := ParseSettings(p, "beam_size=8;decoder/max_steps=20;decoder/length_normalization=0.6")
	require.NoError(t, err)

	scorer := beamsearch.StepScorerFn(func(in *beamsearch.StepInput) *beamsearch.StepOutput { return nil })
	d := beamsearch.New("decoder", scorer, 10).FromParams(p)
	assert.Equal(t, 8, d.BeamSize())
	assert.Equal(t, 20, d.MaxSteps())
	assert.Equal(t, 0.6, d.LengthNormalization())
}

// testOutput has 2 steps and a beam of 3. Final scores: [-3, -1, -2].
func testOutput() *beamsearch.Output {
	return &beamsearch.Output{
		Scores:    mat.NewDense(2, 3, []float64{-1, -1, -1, -3, -1, -2}),
		ParentIDs: [][]int{{0, 0, 0}, {0, 1, 2}},
		TokenIDs:  [][]int{{4, 5, 6}, {2, 7, 2}},
	}
}

func TestHypothesesTable(t *testing.T) {
	t.Run("Words", func(t *testing.T) {
		vocab := vocabulary.New([]string{"a", "b", "c", "d"})
		var buf bytes.Buffer
		rendered := NewHypothesesTable(&buf, vocab).WithTitle("Input #0").Render(testOutput(), vocabulary.EndTokenIndex)
		assert.True(t, strings.HasPrefix(rendered, "Input #0\n"))
		for _, want := range []string{"Row", "Score", "Hypothesis", "-1.0000", "b d", "-2.0000", "c", "-3.0000"} {
			assert.Contains(t, rendered, want)
		}
		// Best first.
		assert.Less(t, strings.Index(rendered, "-1.0000"), strings.Index(rendered, "-2.0000"))
		assert.Less(t, strings.Index(rendered, "-2.0000"), strings.Index(rendered, "-3.0000"))
	})

	t.Run("TokenIDs", func(t *testing.T) {
		var buf bytes.Buffer
		rendered := NewHypothesesTable(&buf, nil).Render(testOutput(), vocabulary.EndTokenIndex)
		assert.Contains(t, rendered, "5 7")
		assert.NotContains(t, rendered, "Input")
	})
}

func TestProgressBar(t *testing.T) {
	scorer := beamsearch.StepScorerFn(func(in *beamsearch.StepInput) *beamsearch.StepOutput {
		return &beamsearch.StepOutput{
			Logits: mat.NewDense(len(in.TokenIDs), 4, nil),
			States: mat.DenseCopyOf(in.States),
		}
	})
	d := beamsearch.New("decoder", scorer, 4).WithBeamSize(2).WithMaxSteps(5)
	var buf bytes.Buffer
	pBar := NewProgressBar(2, &buf).Attach(d)
	for range 2 {
		_, err := d.Decode(&beamsearch.InitialState{State: []float64{0}})
		require.NoError(t, err)
	}
	pBar.Done()
	pBar.Done()
	assert.Equal(t, int64(10), pBar.StepsDone())
	assert.Equal(t, int64(2), pBar.DecodesDone())
	assert.Contains(t, buf.String(), "Decodes")
	assert.Contains(t, buf.String(), "2 of 2")
}
