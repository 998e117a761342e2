// Package main implements the simulator provider as a WASM plugin.
// It realizes declarations with the same deterministic synthetic properties
// as the in-process simulator, and exists mainly as the reference
// implementation of the plugin ABI: guests export hoist_alloc, hoist_free,
// and one function per operation, exchanging JSON envelopes through linear
// memory.
package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/openhoist/openhoist/pkg/engine"
)

type scopedRequest[S any] struct {
	Group engine.Group `json:"group"`
	Spec  S            `json:"spec"`
}

type databaseRequest struct {
	Server engine.SQLServer    `json:"server"`
	Spec   engine.DatabaseSpec `json:"spec"`
}

type ruleRequest struct {
	Server engine.SQLServer   `json:"server"`
	Rule   engine.AddressRule `json:"rule"`
}

type retireRequest struct {
	Server engine.SQLServer `json:"server"`
	RuleID string           `json:"rule_id"`
}

// appliedRules holds rule state for the lifetime of the plugin instance,
// keyed by server name then rule identifier.
var (
	rulesMu      sync.Mutex
	appliedRules = map[string]map[string]engine.AddressRule{}
)

// respond dispatches one operation and wraps the result in the response
// envelope: {"ok": ...} on success, {"error": "..."} on failure.
func respond(op string, payload []byte) []byte {
	result, err := dispatch(op, payload)
	if err != nil {
		out, _ := json.Marshal(map[string]string{"error": err.Error()})
		return out
	}
	out, _ := json.Marshal(map[string]json.RawMessage{"ok": result})
	return out
}

func dispatch(op string, payload []byte) (json.RawMessage, error) {
	switch op {
	case "declare_group":
		return handle(payload, declareGroupOp)
	case "declare_telemetry_sink":
		return handle(payload, declareTelemetrySinkOp)
	case "declare_sql_server":
		return handle(payload, declareSQLServerOp)
	case "declare_database":
		return handle(payload, declareDatabaseOp)
	case "declare_function_host":
		return handle(payload, declareFunctionHostOp)
	case "declare_static_site":
		return handle(payload, declareStaticSiteOp)
	case "apply_address_rule":
		return handle(payload, applyAddressRuleOp)
	case "retire_address_rule":
		return handle(payload, retireAddressRuleOp)
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

// handle decodes the request, runs the operation, and encodes its result.
func handle[Req any, Resp any](payload []byte, fn func(Req) (Resp, error)) (json.RawMessage, error) {
	var req Req
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	resp, err := fn(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func declareGroupOp(spec engine.GroupSpec) (engine.Group, error) {
	if spec.Name == "" {
		return engine.Group{}, fmt.Errorf("group name is required")
	}
	return engine.Group{
		Name:     spec.Name,
		Location: spec.Location,
		ID:       "/sim/groups/" + spec.Name,
	}, nil
}

func declareTelemetrySinkOp(req scopedRequest[engine.TelemetrySinkSpec]) (engine.TelemetrySink, error) {
	return engine.TelemetrySink{
		Name:               req.Spec.Name,
		InstrumentationKey: deterministicKey("ikey", req.Group.Name, req.Spec.Name),
	}, nil
}

func declareSQLServerOp(req scopedRequest[engine.SQLServerSpec]) (engine.SQLServer, error) {
	if req.Spec.Name == "" {
		return engine.SQLServer{}, fmt.Errorf("sql server name is required")
	}
	password := req.Spec.AdminPassword
	if password == "" {
		// A WASM guest has no entropy source of its own, so a generated
		// password is derived rather than random.
		password = deterministicKey("pw", req.Group.Name, req.Spec.Name, req.Spec.AdminLogin)
	}
	return engine.SQLServer{
		Name:          req.Spec.Name,
		FQDN:          req.Spec.Name + ".sim.database.local",
		AdminLogin:    req.Spec.AdminLogin,
		AdminPassword: password,
	}, nil
}

func declareDatabaseOp(req databaseRequest) (engine.Database, error) {
	if req.Spec.Name == "" {
		return engine.Database{}, fmt.Errorf("database name is required")
	}
	conn := fmt.Sprintf(
		"Server=tcp:%s,1433;Database=%s;User ID=%s;Password=%s;Encrypt=true;",
		req.Server.FQDN, req.Spec.Name, req.Server.AdminLogin, req.Server.AdminPassword,
	)
	return engine.Database{
		Name:             req.Spec.Name,
		ServerName:       req.Server.Name,
		ConnectionString: conn,
	}, nil
}

func declareFunctionHostOp(req scopedRequest[engine.FunctionHostSpec]) (engine.FunctionHost, error) {
	if req.Spec.Name == "" {
		return engine.FunctionHost{}, fmt.Errorf("function host name is required")
	}
	return engine.FunctionHost{
		Name:              req.Spec.Name,
		Hostname:          req.Spec.Name + ".sim.functions.local",
		OutboundAddresses: outboundAddresses(req.Spec.Name),
	}, nil
}

func declareStaticSiteOp(req scopedRequest[engine.StaticSiteSpec]) (engine.StaticSite, error) {
	if req.Spec.AccountName == "" {
		return engine.StaticSite{}, fmt.Errorf("static site account name is required")
	}
	return engine.StaticSite{
		AccountName:      req.Spec.AccountName,
		Container:        req.Spec.Container,
		ConnectionString: "AccountName=" + req.Spec.AccountName + ";AccountKey=" + deterministicKey("key", req.Group.Name, req.Spec.AccountName),
	}, nil
}

func applyAddressRuleOp(req ruleRequest) (struct{}, error) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	scope := appliedRules[req.Server.Name]
	if scope == nil {
		scope = make(map[string]engine.AddressRule)
		appliedRules[req.Server.Name] = scope
	}
	scope[req.Rule.ID] = req.Rule
	return struct{}{}, nil
}

func retireAddressRuleOp(req retireRequest) (struct{}, error) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	delete(appliedRules[req.Server.Name], req.RuleID)
	return struct{}{}, nil
}

// outboundAddresses synthesizes a stable two-address list from the host
// name, identical to the in-process simulator's derivation.
func outboundAddresses(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	sum := h.Sum32()
	a := 1 + sum%250
	b := 1 + (sum>>8)%250
	return fmt.Sprintf("10.%d.%d.1,10.%d.%d.2", a, b, a, b)
}

// deterministicKey synthesizes a stable pseudo-credential, identical to the
// in-process simulator's derivation.
func deterministicKey(kind string, parts ...string) string {
	h := fnv.New64a()
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return fmt.Sprintf("sim-%s-%016x", kind, h.Sum64())
}

// main is empty: the host never runs it. The plugin is driven entirely
// through its exported functions.
func main() {}
