// Package effect defines the primitive surface the host platform supplies:
// opaque descriptions of single side-effecting operations, each yielding a
// raw, unclassified outcome for the translation layer to shape.
package effect

import (
	"context"
	"fmt"

	"github.com/taskrow/taskrow/capability"
)

// Outcome is the raw result of performing a host primitive. It carries no
// success/failure distinction of its own beyond the host error; classifying
// it is the translation layer's job, not the primitive's.
type Outcome struct {
	Value any
	Err   error
}

// Effect describes one side-effecting host operation. It is constructed by
// platform code and consumed exactly once, by the task that lifts it.
type Effect interface {
	// Name identifies the operation for logs and run reports.
	Name() string

	// Capability returns the side-effect category this primitive exercises.
	Capability() capability.Tag

	// Perform executes the side effect and returns its raw outcome.
	Perform(ctx context.Context) Outcome
}

// Func adapts a closure into an Effect.
type Func struct {
	name    string
	tag     capability.Tag
	perform func(context.Context) Outcome
}

// NewFunc builds a closure-backed effect.
func NewFunc(name string, tag capability.Tag, perform func(context.Context) Outcome) Func {
	return Func{name: name, tag: tag, perform: perform}
}

func (f Func) Name() string { return f.name }

func (f Func) Capability() capability.Tag { return f.tag }

func (f Func) Perform(ctx context.Context) Outcome { return f.perform(ctx) }

// TypedValue asserts a raw outcome's value to the expected type T.
// Returns the host error as-is when the outcome carries one.
func TypedValue[T any](o Outcome) (T, error) {
	var zero T
	if o.Err != nil {
		return zero, o.Err
	}
	val, ok := o.Value.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected outcome type: %T", o.Value)
	}
	return val, nil
}
