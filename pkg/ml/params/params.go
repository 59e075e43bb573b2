// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package params holds the hyperparameters used to configure decoders and scorers.
//
// Parameters are scoped: a Params is a reference to a shared ScopedParams plus a current
// scope. Reading a parameter searches from the current scope up to the root, so a value set
// at the root works as a default for every model part, and a value set in "/decoder" only
// affects the part named "decoder".
package params

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"

	"github.com/gomlx/exceptions"
)

const (
	// ScopeSeparator separates the elements of a scope path.
	ScopeSeparator = "/"

	// RootScope is the scope of a freshly created Params.
	RootScope = ScopeSeparator
)

// Params is a reference to a set of scoped hyperparameters.
//
// Copies created with In or InAbsPath share the same underlying values.
type Params struct {
	scope string
	data  *ScopedParams
}

// New creates an empty Params, at the root scope.
func New() *Params {
	return &Params{scope: RootScope, data: NewScopedParams()}
}

// Scope returns the full scope path.
func (p *Params) Scope() string {
	return p.scope
}

// In returns a new reference to the Params with the extra given scope. No ScopeSeparator ("/") is
// allowed in scope.
func (p *Params) In(scope string) *Params {
	if scope == "" {
		exceptions.Panicf("cannot use empty scope for Params.In()")
	}
	if strings.Contains(scope, ScopeSeparator) {
		exceptions.Panicf("cannot use separator %q in scope element %q", ScopeSeparator, scope)
	}
	return p.InAbsPath(JoinScope(p.scope, scope))
}

// InAbsPath returns a new reference to the Params set to the given absolute scope path.
func (p *Params) InAbsPath(scopePath string) *Params {
	if !strings.HasPrefix(scopePath, ScopeSeparator) {
		exceptions.Panicf("absolute scope path must start with separator %q, instead got %q", ScopeSeparator, scopePath)
	}
	return &Params{scope: scopePath, data: p.data}
}

// JoinScope joins a scope path and a name.
func JoinScope(scope, name string) string {
	if strings.HasSuffix(scope, ScopeSeparator) {
		return scope + name
	}
	if scope == "" {
		return name
	}
	return fmt.Sprintf("%s%s%s", scope, ScopeSeparator, name)
}

// SplitScope splits the scope from the name for a combined string, typically created by JoinScope.
// If there is no scope configured, scope is set to "".
func SplitScope(scopeAndName string) (scope, name string) {
	if !strings.HasPrefix(scopeAndName, ScopeSeparator) {
		return "", scopeAndName
	}
	separationIdx := strings.LastIndex(scopeAndName, ScopeSeparator)
	name = scopeAndName[separationIdx+1:]
	if separationIdx == 0 {
		scope = RootScope
	} else {
		scope = scopeAndName[:separationIdx]
	}
	return
}

// Get returns the value for the given key, searching successively from
// the current scope back to the root scope ("/").
func (p *Params) Get(key string) (value any, found bool) {
	return p.data.Get(p.scope, key)
}

// Set sets the given param in the current scope. It will be visible (by Get)
// within this scope and descendant scopes (but not by other scopes).
func (p *Params) Set(key string, value any) {
	p.data.Set(p.scope, key, value)
}

// SetParams sets a collection of parameters in the current scope.
func (p *Params) SetParams(keyValues map[string]any) {
	for key, value := range keyValues {
		p.data.Set(p.scope, key, value)
	}
}

// Enumerate enumerates all parameters for all scopes, sorted by scope and key.
func (p *Params) Enumerate(fn func(scope, key string, value any)) {
	p.data.Enumerate(fn)
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// MustGetParam is like Get, but panics if the parameter is not found, or if it cannot be
// converted to T.
//
// It tries to cast the value to the given type. If it fails, it tries to convert the
// value to the given type (so an `int` will be converted to a `float64` transparently).
// String values are decoded with encoding.TextUnmarshaler if T implements it.
func MustGetParam[T any](p *Params, key string) T {
	var t T
	valueAny, found := p.Get(key)
	if !found {
		exceptions.Panicf("parameter %q (of type %T) not found in scope %q (and its parents)", key, t, p.Scope())
	}
	if value, ok := valueAny.(T); ok {
		return value
	}

	v := reflect.ValueOf(valueAny)
	typeOfT := reflect.TypeOf(t)
	valueT := reflect.New(typeOfT)
	if valueT.Type().Implements(textUnmarshalerType) && v.Kind() == reflect.String {
		if err := valueT.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.String())); err != nil {
			exceptions.Panicf("can't UnmarshalText %q to %s for parameter %q: %v", v.String(), typeOfT, key, err)
		}
		return valueT.Elem().Interface().(T)
	}
	if !v.IsValid() || !v.CanConvert(typeOfT) {
		exceptions.Panicf("MustGetParam/GetParamOr[%s](params, %q): params(scope=%q)[%q]=(%T) %#v cannot be converted to %s",
			typeOfT, key, p.Scope(), key, valueAny, valueAny, typeOfT)
	}
	return v.Convert(typeOfT).Interface().(T)
}

// GetParamOr either returns the value for the given param key, searching successively from the
// current scope back to the root scope ("/"), or if the key is not found or the key is set to nil,
// it returns the given default value.
//
// Conversion follows MustGetParam.
func GetParamOr[T any](p *Params, key string, defaultValue T) T {
	valueAny, found := p.Get(key)
	if !found || valueAny == nil {
		return defaultValue
	}
	return MustGetParam[T](p, key)
}
