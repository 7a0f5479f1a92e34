// Package task provides deferred, typed, capability-annotated computations
// over host effects.
//
// # What is a Task?
//
// A Task[T] is a value describing a computation that, when run, resolves to
// exactly one of: a success value of type T, or one variant of its declared
// error row. Constructing or composing a Task performs no work; the
// underlying effect executes only when the task is eventually run by its
// consumer.
//
// # Translation
//
// Lift is the boundary between platform primitives and application code. It
// takes a host effect plus a total classify function and produces a Task
// whose error row is the declared variant set and whose capability
// annotation is the effect's declared category. Every distinguishable host
// failure must map to its own variant: a classify function that collapses
// failures into one generic variant, or reports success regardless of the
// raw outcome, is a defective binding.
//
// # Composition
//
// Map transforms the success value, MapErr reshapes the failure variant,
// Then and AndThen sequence tasks. Sequencing is strict: the second task's
// effect never starts before the first has resolved, and a failure
// short-circuits with its payload unchanged. Composed annotations are the
// set union of the operands' annotations, fixed at construction time, so a
// platform can refuse an unauthorized computation without running any of it.
//
// # Defects versus failures
//
// Expected, enumerable operation failures resolve as row variants and are
// recovered with the same combinators used for success. A binding that
// breaks its own declaration — classifying into an undeclared variant,
// returning a continuation exceeding its declared row or capability set,
// running a consumed effect twice — is a programming defect and panics with
// a Defect value rather than surfacing as a recoverable error.
package task
