// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package beamsearch

import (
	"iter"
	"slices"
)

// Priority for hooks, the lowest values are run first. Defaults to 0, but negative
// values are ok.
type Priority int

// OnStartFn is called once before the first step, with the number of steps that will be run.
type OnStartFn func(d *Decoder, maxSteps int)

// OnStepFn is called after every step, with the new state of the beam and the record of the step.
// They must not modify the state or the record.
type OnStepFn func(d *Decoder, step int, state *SearchState, record SearchStepOutput)

// OnEndFn is called once after the last step with the stacked output.
type OnEndFn func(d *Decoder, output *Output)

type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type H per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{
		hooks: make(map[Priority][]H),
	}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// All returns an iterator over all registered hooks in priority order, and within the same
// priority in the order they were added.
func (h *priorityHooks[H]) All() iter.Seq[H] {
	return func(yield func(H) bool) {
		keys := make([]Priority, 0, len(h.hooks))
		for key := range h.hooks {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			for _, hook := range h.hooks[key] {
				if !yield(hook) {
					return
				}
			}
		}
	}
}

// OnStart registers a hook called before the first step.
// Hooks must be registered before Decode is called, not concurrently with it.
func (d *Decoder) OnStart(name string, priority Priority, fn OnStartFn) *Decoder {
	d.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
	return d
}

// OnStep registers a hook called after every step.
// Hooks can only observe: there is no way to stop the decoding loop before the last step.
func (d *Decoder) OnStep(name string, priority Priority, fn OnStepFn) *Decoder {
	d.onStep.Add(priority, &hookWithName[OnStepFn]{name: name, fn: fn})
	return d
}

// OnEnd registers a hook called with the final output.
func (d *Decoder) OnEnd(name string, priority Priority, fn OnEndFn) *Decoder {
	d.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
	return d
}
