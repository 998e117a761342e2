package policy

// BuiltinPolicies returns the policies that ship with the engine.
func BuiltinPolicies() []Policy {
	return []Policy{
		singleAddressRulePolicy(),
		signingTTLPolicy(),
		httpsEndpointPolicy(),
	}
}

// singleAddressRulePolicy forbids firewall rules that span a range.
func singleAddressRulePolicy() Policy {
	return Policy{
		Name:        "firewall-single-address",
		Description: "Firewall rules must enable exactly one address, never a range",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package openhoist.policies.firewall

import rego.v1

deny contains violation if {
	some rule in input.rules
	rule.start_address != rule.end_address
	violation := {
		"message": sprintf("rule %s spans %s to %s; ranges are not allowed", [rule.id, rule.start_address, rule.end_address]),
		"severity": "error",
	}
}

deny contains violation if {
	some rule in input.rules
	rule.start_address == ""
	violation := {
		"message": sprintf("rule %s has an empty address", [rule.id]),
		"severity": "error",
	}
}
`,
	}
}

// signingTTLPolicy caps signed-URL validity at seven days.
func signingTTLPolicy() Policy {
	return Policy{
		Name:        "signing-ttl-cap",
		Description: "Signed asset URLs must not be valid for longer than seven days",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package openhoist.policies.signing

import rego.v1

max_ttl_seconds := 604800

deny contains violation if {
	input.signing_ttl_seconds > max_ttl_seconds
	violation := {
		"message": sprintf("signing ttl of %d seconds exceeds the %d second cap", [input.signing_ttl_seconds, max_ttl_seconds]),
		"severity": "error",
	}
}
`,
	}
}

// httpsEndpointPolicy requires exported endpoints to use HTTPS.
func httpsEndpointPolicy() Policy {
	return Policy{
		Name:        "https-endpoints",
		Description: "Exported endpoints must use HTTPS",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package openhoist.policies.endpoints

import rego.v1

deny contains violation if {
	some name, value in input.endpoints
	value != ""
	not startswith(value, "https://")
	violation := {
		"message": sprintf("endpoint %s is %s; only https endpoints may be exported", [name, value]),
		"severity": "error",
	}
}
`,
	}
}
