// Package policy gates deployments with Rego policies evaluated by OPA.
//
// Before an apply the orchestrator builds an Input snapshot of the
// deployment (manifest facts, synthesized firewall rules, signing TTL,
// resolved endpoints) and evaluates every enabled policy against it. A
// violation at error severity blocks the run; warnings are reported but
// do not block.
//
// Built-in policies ship with the engine: firewall rules must cover a
// single address, signed-URL TTLs are capped, and exported endpoints must
// be HTTPS. Additional .rego files can be loaded from a directory, and the
// loader can watch that directory and hot-reload policies on change.
//
// A policy contributes violations through deny rules in its package:
//
//	package openhoist.policies.example
//
//	import rego.v1
//
//	deny contains violation if {
//	    some rule in input.rules
//	    rule.start_address != rule.end_address
//	    violation := {"message": "address ranges are not allowed"}
//	}
package policy
