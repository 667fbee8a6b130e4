package testutil

import (
	"errors"
	"time"
)

// Step is one scripted producer action. Exactly one of Token, End, Err or
// Sleep is meaningful per step.
type Step struct {
	Token string
	End   bool
	Err   error
	Sleep time.Duration
}

// ScriptBuilder provides a fluent helper for constructing producer scripts.
// Example:
//
//	steps := NewScript().Tokens("a1", "a2").End().Tokens("late").Build()
//
// Steps after a terminal step are kept on purpose; they simulate a producer
// that keeps emitting after it signalled completion.
type ScriptBuilder struct {
	steps []Step
}

// NewScript creates an empty builder.
func NewScript() *ScriptBuilder { return &ScriptBuilder{} }

// Tokens appends one token step per text (chainable).
func (b *ScriptBuilder) Tokens(texts ...string) *ScriptBuilder {
	for _, t := range texts {
		b.steps = append(b.steps, Step{Token: t})
	}
	return b
}

// End appends a completion step (chainable).
func (b *ScriptBuilder) End() *ScriptBuilder {
	b.steps = append(b.steps, Step{End: true})
	return b
}

// Fail appends an error step (chainable).
func (b *ScriptBuilder) Fail(msg string) *ScriptBuilder {
	b.steps = append(b.steps, Step{Err: errors.New(msg)})
	return b
}

// Sleep appends a pause (chainable).
func (b *ScriptBuilder) Sleep(d time.Duration) *ScriptBuilder {
	b.steps = append(b.steps, Step{Sleep: d})
	return b
}

// Build returns a copy of the accumulated steps.
func (b *ScriptBuilder) Build() []Step {
	out := make([]Step, len(b.steps))
	copy(out, b.steps)
	return out
}
