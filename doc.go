// Package incrementalbuild implements the core of an incremental-build
// engine: given a set of input resources and the outputs derived from
// them, it decides what needs re-processing on each invocation and
// persists enough state between invocations to make that decision
// correctly and cheaply.
//
// BasicContext and AggregatorContext are the two concrete entry points.
// BasicContext tracks outputs only, with no input-change tracking of its
// own; AggregatorContext folds many inputs into a single output under a
// "create only if necessary" contract. Both are built on the same
// unexported engine (registration, processing, association, and commit),
// which lives alongside them in this package.
//
// The engine consumes two collaborators supplied by the host: a
// workspace.Workspace for file enumeration, change detection, and I/O, and
// optionally a sink.MessageSink notified with the build's diagnostics at
// commit time.
package incrementalbuild
