package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/taskrow/taskrow/capability"
	"github.com/taskrow/taskrow/effect"
	"github.com/taskrow/taskrow/row"
)

// Unit is the success type of tasks run purely for their effect.
type Unit = struct{}

// Result is the resolution of a run task: exactly one of Value or Failure.
type Result[T any] struct {
	Value   T
	Failure row.Variant
}

// Failed reports whether the result is a failure variant.
func (r Result[T]) Failed() bool { return r.Failure != nil }

// Defect reports a broken binding contract: a bug in platform code, not a
// recoverable application failure. Defects are raised by panic and must not
// be coerced into row variants.
type Defect struct {
	Op     string
	Reason string
}

func (d Defect) Error() string {
	return fmt.Sprintf("binding defect in %s: %s", d.Op, d.Reason)
}

// Task is a deferred computation resolving to a success value of type T or
// to one variant of its declared error row, annotated with the side-effect
// categories it may exercise.
//
// Tasks are immutable values: composition produces new tasks and never
// mutates existing ones. Each task is owned by whichever code constructed
// or is currently composing it.
type Task[T any] struct {
	name string
	caps capability.Set
	errs row.Row
	run  func(ctx context.Context) Result[T]
}

// Name identifies the task for logs and run reports.
func (t Task[T]) Name() string { return t.name }

// Capabilities returns the task's capability annotation: a superset of
// every side-effect category reachable through it.
func (t Task[T]) Capabilities() capability.Set { return t.caps }

// ErrorRow returns the declared set of variants the task may fail with.
func (t Task[T]) ErrorRow() row.Row { return t.errs }

// Run resolves the task. It is the single execution point; everything up to
// here is pure data shaping.
func (t Task[T]) Run(ctx context.Context) Result[T] {
	if t.run == nil {
		panic(Defect{Op: "task.Run", Reason: "run of a zero Task value"})
	}
	return t.run(ctx)
}

// Succeed builds a pure task resolving to v: empty error row, empty
// capability annotation.
func Succeed[T any](v T) Task[T] {
	return Task[T]{
		name: "pure",
		run:  func(context.Context) Result[T] { return Result[T]{Value: v} },
	}
}

// FailWith builds a pure task resolving to the given variant of the
// declared row. An undeclared variant is a defect.
func FailWith[T any](declared row.Row, v row.Variant) Task[T] {
	if !declared.Declares(v) {
		panic(Defect{Op: "task.FailWith", Reason: fmt.Sprintf("variant %q not declared by row %s", v.Tag(), declared)})
	}
	return Task[T]{
		name: "fail",
		errs: declared,
		run:  func(context.Context) Result[T] { return Result[T]{Failure: v} },
	}
}

// Lift adapts a host effect into a task.
//
// classify must be total over the primitive's raw outcomes: every outcome
// maps to a success value (nil variant) or to one variant of declared.
// Classifying into an undeclared variant is a defect in the platform
// binding, as is running the lifted task twice — the wrapped effect is
// consumed exactly once.
//
// The resulting row is declared plus the distinguished Cancelled variant;
// host cancellation resolves to Cancelled, never to silent non-completion.
// The capability annotation is the effect's declared category.
func Lift[T any](eff effect.Effect, declared row.Row, classify func(effect.Outcome) (T, row.Variant)) Task[T] {
	errs := row.MustUnion(declared, row.Of(row.Cancelled{}))
	var consumed atomic.Bool
	return Task[T]{
		name: eff.Name(),
		caps: capability.NewSet(eff.Capability()),
		errs: errs,
		run: func(ctx context.Context) Result[T] {
			if !consumed.CompareAndSwap(false, true) {
				panic(Defect{Op: eff.Name(), Reason: "effect performed twice"})
			}
			if err := ctx.Err(); err != nil {
				return Result[T]{Failure: row.Cancelled{Cause: err}}
			}
			out := eff.Perform(ctx)
			if cause := ctx.Err(); cause != nil && out.Err != nil && errors.Is(out.Err, cause) {
				// the host observed our cancellation mid-flight
				return Result[T]{Failure: row.Cancelled{Cause: out.Err}}
			}
			value, variant := classify(out)
			if variant == nil {
				return Result[T]{Value: value}
			}
			if !errs.Declares(variant) {
				panic(Defect{Op: eff.Name(), Reason: fmt.Sprintf("classified outcome into undeclared variant %q", variant.Tag())})
			}
			return Result[T]{Failure: variant}
		},
	}
}
