// Package deferred provides the deferred-value primitives that the openhoist
// pipeline is built on. A deferred value wraps a resource property that only
// exists once the platform has realized the resource (a hostname, a connection
// string, an assigned address list).
//
// Composition never blocks the caller: Map, Then, and the join functions
// register continuations that the resolving goroutine invokes once every input
// has reached a terminal state. A continuation therefore never observes a
// pending input, runs at most once, and is skipped entirely when any input
// failed (the failure propagates to the derived value instead).
//
// Values resolve exactly once and are immutable afterwards. Wait is the only
// blocking operation and is intended for the engine driving a deployment and
// for tests.
package deferred
