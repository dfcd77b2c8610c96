// Package pipeline is the generic stage-chain engine behind every
// operation builder.
//
// An operation is represented as an ordered list of processors over a
// shared mutable context. Each operation kind declares a fixed standard
// chain of named stages; callers may anchor custom processors to any
// standard stage, and a chain is assembled per invocation by splicing the
// custom processors immediately after their anchors in registration order.
//
// # Control flow
//
// Processors return an Outcome, not success/failure: Continue passes
// control to the next processor, Stop terminates the chain with the
// current context state as the final result. Failures are raised as
// errors; the executor propagates the first one and runs nothing further.
//
// # Terminal registrations
//
// A processor registered as terminal truncates the assembled chain right
// after itself: the anchor's later standard stages and any registrations
// at later anchors are dropped. Registrations at the same anchor that were
// made earlier still run before it.
package pipeline
