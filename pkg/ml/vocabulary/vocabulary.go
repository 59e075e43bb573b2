// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package vocabulary maps token ids to words and back, and defines the special tokens
// shared by encoders and decoders.
package vocabulary

import (
	"strings"

	"github.com/sanjeeku/neuralmonkey/pkg/support/fsutil"
)

// Special token indices: every Vocabulary starts with them, in this order.
const (
	PadTokenIndex = iota
	StartTokenIndex
	EndTokenIndex
	UnkTokenIndex
)

// Special tokens, as rendered.
const (
	PadToken   = "<pad>"
	StartToken = "<s>"
	EndToken   = "</s>"
	UnkToken   = "<unk>"
)

var specialTokens = []string{PadToken, StartToken, EndToken, UnkToken}

// Vocabulary is an immutable list of words indexed by token id.
type Vocabulary struct {
	words []string
	index map[string]int
}

// New creates a vocabulary with the special tokens followed by the given words.
// Duplicate words (or words equal to a special token) are ignored.
func New(words []string) *Vocabulary {
	v := &Vocabulary{
		words: make([]string, 0, len(specialTokens)+len(words)),
		index: make(map[string]int, len(specialTokens)+len(words)),
	}
	for _, w := range specialTokens {
		v.add(w)
	}
	for _, w := range words {
		v.add(w)
	}
	return v
}

func (v *Vocabulary) add(word string) {
	if _, found := v.index[word]; found {
		return
	}
	v.index[word] = len(v.words)
	v.words = append(v.words, word)
}

// Load reads a word list, one word per line. Empty lines and lines starting with "#" are skipped.
func Load(filePath string) (*Vocabulary, error) {
	contents, err := fsutil.ReadFile(filePath, "vocabulary")
	if err != nil {
		return nil, err
	}
	var words []string
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return New(words), nil
}

// Size returns the number of tokens, including the special ones.
func (v *Vocabulary) Size() int {
	return len(v.words)
}

// ID returns the token id of word, or UnkTokenIndex if word is unknown.
func (v *Vocabulary) ID(word string) int {
	if id, found := v.index[word]; found {
		return id
	}
	return UnkTokenIndex
}

// Word returns the word for the token id, or UnkToken if the id is out of range.
func (v *Vocabulary) Word(id int) string {
	if id < 0 || id >= len(v.words) {
		return UnkToken
	}
	return v.words[id]
}

// Words maps token ids to words.
func (v *Vocabulary) Words(ids []int) []string {
	words := make([]string, len(ids))
	for ii, id := range ids {
		words[ii] = v.Word(id)
	}
	return words
}

// Sentence renders a decoded hypothesis: it stops at the first end token and skips padding
// and start tokens.
func (v *Vocabulary) Sentence(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == EndTokenIndex {
			break
		}
		if id == PadTokenIndex || id == StartTokenIndex {
			continue
		}
		parts = append(parts, v.Word(id))
	}
	return strings.Join(parts, " ")
}
