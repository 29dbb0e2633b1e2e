// Package engine implements the hierarchical migration execution-state
// engine: the status registry, the template (master) and instance
// (execution) graph layers, and the state transition rules that keep them
// consistent.
//
// # Layers
//
// The master layer (TemplateCatalog) holds authored plan structure:
// Plan -> Sequence -> Phase -> Step -> Instruction nodes, plus Control
// checkpoints under phases. Each node carries an explicit display order and
// an optional same-level predecessor link; the two are independent signals.
// Predecessor chains are validated acyclic and confined to one parent at
// authoring time, which is what lets the execution layer treat a chain walk
// as bounded.
//
// The execution layer (Engine) owns one instance graph per iteration,
// produced by Instantiate as an explicit arena copy of a plan template
// subtree. Instance nodes carry their own status, timing, and override
// fields; they reference template nodes by ID and never alias their memory.
//
// # Transitions
//
// Transition applies one status change per call and appends one immutable
// audit event. Gating is local: a node starts only after its predecessor
// completes, and completes only after its children are complete or
// cancelled. The engine never cascades; CanComplete exists so the
// orchestration layer can poll instead.
//
// # Errors
//
// All rejections are typed EngineError values classified as validation,
// state, conflict, or integrity. The first three are expected caller
// conditions. Integrity violations (cyclic chains slipping past authoring,
// incomplete instantiation arenas) indicate a defect and should be treated
// like assertion failures.
//
// # Concurrency
//
// The registry and catalog serialize writes internally and are safe for
// unlimited concurrent reads. Transitions serialize per node, lock the
// parent for the duration of the child check, and leave siblings fully
// parallel.
package engine
