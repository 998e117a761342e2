// Package stack composes the deployment pipeline for one stack manifest.
//
// The orchestrator owns the resource graph. It declares resources through
// the Platform SPI in dependency order, each declaration returning a
// deferred value, and chains every side-effecting step onto the deferred
// values it depends on: firewall rule synthesis onto the server and the
// function host's outbound addresses, endpoint resolution onto the host,
// asset publishing onto the static site and the resolved endpoint. The
// deferred graph itself is the scheduler; Deploy only waits at the end for
// the terminal values.
//
// Side effects run through the shared effect gate, so a preview run builds
// and reports the identical graph while uploading nothing, signing nothing,
// spawning no subprocess, and writing no rules.
package stack
