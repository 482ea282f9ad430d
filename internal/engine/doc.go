// Package engine implements the execution loop that turns a natural-language
// goal into a validated task plan and runs it step by step.
//
// One Engine serves a session. Each submitted goal becomes a run with its own
// worker goroutine, run-scoped state, and single-assignment result box. The
// loop is strictly sequential: steps execute in declared order, one at a
// time, with the cursor advancing by exactly one per iteration. Dependency
// gating, cross-step parameter resolution, classifier-guided recovery, and
// escalation to an alternate execution path all happen inside the step
// iteration; finalization guarantees exactly one user-facing result with a
// non-empty message in every terminal state.
package engine
