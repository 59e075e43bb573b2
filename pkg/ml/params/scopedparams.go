// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"strings"

	"github.com/sanjeeku/neuralmonkey/pkg/support/xslices"
)

// ScopedParams provides a mapping from string to any data type that is "scoped":
//
//   - For every scope there is a map of string to data.
//   - Accessing a key triggers a search from the current scope up to the root scope, the
//     first result found is returned.
//
// Example: let's say the current ScopedParams hold:
//
//	Scope: "/": { "beam_size": 4, "max_steps": 20 }
//	Scope: "/decoder": { "beam_size": 8 }
//	Scope: "/decoder/ensemble": { "length_normalization": 0.6 }
//
//	ScopedParams.Get("/decoder/ensemble", "beam_size") -> 8
//	ScopedParams.Get("/decoder/ensemble", "max_steps") -> 20
//	ScopedParams.Get("/decoder", "length_normalization") -> Not found.
//
// Notice that "/" (== ScopeSeparator constant) separates parts of the scope path, and the root
// scope is referred to as "/". There is no "empty" scope, and every scope name must start with
// a ScopeSeparator.
type ScopedParams struct {
	scopeToMap map[string]map[string]any
}

// NewScopedParams create an empty ScopedParams.
func NewScopedParams() *ScopedParams {
	return &ScopedParams{
		scopeToMap: make(map[string]map[string]any),
	}
}

// Set sets the value for the given key, in the given scope.
func (p *ScopedParams) Set(scope, key string, value any) {
	dataMap, found := p.scopeToMap[scope]
	if !found || dataMap == nil {
		dataMap = make(map[string]any)
		p.scopeToMap[scope] = dataMap
	}
	dataMap[key] = value
}

// Get retrieves the value for the given key in the given scope or any parent scope.
// E.g: Get("/a/b", "myKey") will search for "myKey" in scopes "/a/b", "/a" and "/"
// consecutively until "myKey" is found.
//
// It returns the first value found if any, and whether some value was found.
func (p *ScopedParams) Get(scope, key string) (value any, found bool) {
	for {
		if dataMap := p.scopeToMap[scope]; dataMap != nil {
			value, found = dataMap[key]
			if found {
				return
			}
		}
		if scope == RootScope || scope == "" {
			return nil, false
		}
		idx := strings.LastIndex(scope, ScopeSeparator)
		if idx <= 0 {
			scope = RootScope
		} else {
			scope = scope[:idx]
		}
	}
}

// Enumerate enumerates all parameters stored in the ScopedParams structure and calls the given closure with
// them, sorted by scope and then by key.
func (p *ScopedParams) Enumerate(fn func(scope, key string, value any)) {
	for _, scope := range xslices.SortedKeys(p.scopeToMap) {
		keyValues := p.scopeToMap[scope]
		for _, key := range xslices.SortedKeys(keyValues) {
			fn(scope, key, keyValues[key])
		}
	}
}
