// Package workflow provides a declarative step-graph execution engine.
//
// A Definition names a set of steps with explicit (depends_on) and implicit
// (output -> input variable) dependencies. Registration validates the
// definition, rejects cycles, and precomputes a deterministic topological
// execution order with declaration-order tie-breaking. Each execution owns a
// Context holding the variable map and an append-only step history, and is
// observable and cancellable through an Execution handle.
//
// Step semantics: conditions gate execution, per-attempt timeouts are
// enforced by the engine, failures are retried under a bounded exponential
// backoff policy, and action results must match the step's declared outputs
// exactly. The first unrecovered step failure aborts the execution.
//
// Finished executions are persisted to a HistoryStore; in-memory and Redis
// backends are provided.
package workflow
