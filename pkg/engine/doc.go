// Package engine provides the core contracts of the openhoist deployment
// pipeline.
//
// # Overview
//
// openhoist provisions a cloud application stack (database, compute, object
// storage, static site, telemetry) by declaring resources whose concrete
// runtime properties are only known after the platform realizes them. The
// engine package defines the pieces every other package builds on:
//
//   - Mode: the preview/apply execution mode of a deployment run
//   - EffectRunner: the gate every side effect is routed through
//   - Realized resource types (Group, SQLServer, FunctionHost, ...) that
//     deferred values carry through the pipeline
//   - Platform: the SPI that opaque capability providers implement
//   - DeployError: the classified error taxonomy
//   - Graph: the dependency graph used to render a plan in order
//
// # Two-stage effects
//
// The pipeline separates declaring a dependency (pure composition through the
// deferred package) from performing a side effect (gated execution through
// EffectRunner). Components such as the asset publisher and the rule
// synthesizer compose deferred values freely but route every externally
// visible mutation through an EffectRunner, so a preview pass provably
// performs no uploads, no subprocess invocations, and no remote writes.
//
// The execution mode is an explicit value injected at construction time. It
// is never read from ambient or global state; that keeps side effects
// testable in isolation and makes the double evaluation of a
// preview-then-apply run safe by construction.
//
// # Error Classification
//
// Failures are classified by what broke rather than by where:
//
//   - FailureResolution: an upstream resource failed to provision; the cause
//     propagates through every dependent deferred value
//   - FailureIO: a file was unreadable or an upload failed; the publisher
//     aborts fast with no rollback of earlier uploads
//   - FailureQuery: a control-plane subprocess produced no usable output;
//     reported with the exit status and captured stderr
//   - FailurePolicy: the policy gate rejected the planned stack
//   - FailureState: the deployment state store misbehaved
//
// Any fatal failure aborts the whole run; exports are all-or-nothing.
package engine
