package task

import (
	"context"
	"fmt"

	"github.com/taskrow/taskrow/capability"
	"github.com/taskrow/taskrow/row"
)

// Decl declares the error row and capability annotation of a continuation
// whose task value only materializes at run time. AndThen fixes the
// composed annotation from this declaration at construction time; a
// continuation exceeding it is a defect.
type Decl struct {
	Row  row.Row
	Caps capability.Set
}

// Map transforms the success value of a task. Error row and capability
// annotation are unchanged; a failure passes through with its payload
// intact.
func Map[A, B any](t Task[A], f func(A) B) Task[B] {
	return Task[B]{
		name: t.name,
		caps: t.caps,
		errs: t.errs,
		run: func(ctx context.Context) Result[B] {
			ra := t.Run(ctx)
			if ra.Failed() {
				return Result[B]{Failure: ra.Failure}
			}
			return Result[B]{Value: f(ra.Value)}
		},
	}
}

// MapErr reshapes failure variants into the target row. Successes pass
// through untouched. f must keep the resolution a failure and stay within
// the target row (Cancelled is always admitted); anything else is a defect.
func MapErr[T any](t Task[T], to row.Row, f func(row.Variant) row.Variant) Task[T] {
	errs := row.MustUnion(to, row.Of(row.Cancelled{}))
	return Task[T]{
		name: t.name,
		caps: t.caps,
		errs: errs,
		run: func(ctx context.Context) Result[T] {
			rt := t.Run(ctx)
			if !rt.Failed() {
				return rt
			}
			v := f(rt.Failure)
			if v == nil {
				panic(Defect{Op: t.name, Reason: "MapErr turned a failure into a non-resolution"})
			}
			if !errs.Declares(v) {
				panic(Defect{Op: t.name, Reason: fmt.Sprintf("MapErr produced undeclared variant %q", v.Tag())})
			}
			return Result[T]{Failure: v}
		},
	}
}

// Then sequences two already-constructed tasks: b runs only after a has
// resolved successfully. The composed error row is the structural union of
// both rows, resolved here, at construction time — an ambiguous variant
// identity panics rather than being silently merged. The composed
// capability annotation is the union of both annotations.
//
// If a fails, b's effect is never executed and the composed task resolves
// to a's failure with the payload unchanged.
func Then[A, B any](a Task[A], b Task[B]) Task[B] {
	errs := row.MustUnion(a.errs, b.errs)
	return Task[B]{
		name: a.name + ">" + b.name,
		caps: a.caps.Union(b.caps),
		errs: errs,
		run: func(ctx context.Context) Result[B] {
			ra := a.Run(ctx)
			if ra.Failed() {
				return Result[B]{Failure: ra.Failure}
			}
			return b.Run(ctx)
		},
	}
}

// AndThen sequences a task with a continuation computed from its success
// value. Because the continuation task only exists at run time, its error
// row and capability annotation must be declared up front; the composed
// annotation is fixed here, at construction time, as the union of a's
// annotation and the declaration.
//
// A continuation whose row or capability set exceeds the declaration is an
// under-approximated annotation — a defect, since the declaration is what a
// platform authorized.
func AndThen[A, B any](a Task[A], next Decl, f func(A) Task[B]) Task[B] {
	declaredRow := row.MustUnion(next.Row, row.Of(row.Cancelled{}))
	errs := row.MustUnion(a.errs, declaredRow)
	return Task[B]{
		name: a.name + ">andThen",
		caps: a.caps.Union(next.Caps),
		errs: errs,
		run: func(ctx context.Context) Result[B] {
			ra := a.Run(ctx)
			if ra.Failed() {
				return Result[B]{Failure: ra.Failure}
			}
			b := f(ra.Value)
			if !declaredRow.Covers(b.errs) {
				panic(Defect{Op: b.name, Reason: fmt.Sprintf("continuation row %s exceeds declared row %s", b.errs, declaredRow)})
			}
			if !next.Caps.Covers(b.caps) {
				panic(Defect{Op: b.name, Reason: fmt.Sprintf("continuation capabilities %s exceed declared %s", b.caps, next.Caps)})
			}
			return b.Run(ctx)
		},
	}
}
