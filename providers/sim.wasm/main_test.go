package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/openhoist/openhoist/pkg/engine"
)

func call[Req any, Resp any](t *testing.T, op string, req Req) Resp {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	var envelope struct {
		OK    json.RawMessage `json:"ok"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(respond(op, payload), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error != "" {
		t.Fatalf("%s returned error: %s", op, envelope.Error)
	}
	var resp Resp
	if err := json.Unmarshal(envelope.OK, &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func callError[Req any](t *testing.T, op string, req Req) string {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respond(op, payload), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error == "" {
		t.Fatalf("%s did not return an error", op)
	}
	return envelope.Error
}

func TestDeclareGroup(t *testing.T) {
	group := call[engine.GroupSpec, engine.Group](t, "declare_group", engine.GroupSpec{
		Name:     "orders-rg",
		Location: "local",
	})
	if group.ID != "/sim/groups/orders-rg" {
		t.Errorf("group ID = %q", group.ID)
	}
	if group.Location != "local" {
		t.Errorf("group location = %q", group.Location)
	}
}

func TestDeclareGroupRequiresName(t *testing.T) {
	msg := callError(t, "declare_group", engine.GroupSpec{})
	if !strings.Contains(msg, "name is required") {
		t.Errorf("error = %q", msg)
	}
}

func TestDeclareSQLServerGeneratesStablePassword(t *testing.T) {
	req := scopedRequest[engine.SQLServerSpec]{
		Group: engine.Group{Name: "orders-rg"},
		Spec:  engine.SQLServerSpec{Name: "orders-sql", AdminLogin: "admin"},
	}
	first := call[scopedRequest[engine.SQLServerSpec], engine.SQLServer](t, "declare_sql_server", req)
	second := call[scopedRequest[engine.SQLServerSpec], engine.SQLServer](t, "declare_sql_server", req)

	if first.AdminPassword == "" {
		t.Fatal("no password generated")
	}
	if first.AdminPassword != second.AdminPassword {
		t.Error("generated password is not stable")
	}
	if first.FQDN != "orders-sql.sim.database.local" {
		t.Errorf("FQDN = %q", first.FQDN)
	}
}

func TestDeclareSQLServerKeepsExplicitPassword(t *testing.T) {
	req := scopedRequest[engine.SQLServerSpec]{
		Group: engine.Group{Name: "orders-rg"},
		Spec:  engine.SQLServerSpec{Name: "orders-sql", AdminLogin: "admin", AdminPassword: "hunter2"},
	}
	server := call[scopedRequest[engine.SQLServerSpec], engine.SQLServer](t, "declare_sql_server", req)
	if server.AdminPassword != "hunter2" {
		t.Errorf("password = %q", server.AdminPassword)
	}
}

func TestDeclareDatabaseConnectionString(t *testing.T) {
	db := call[databaseRequest, engine.Database](t, "declare_database", databaseRequest{
		Server: engine.SQLServer{
			Name:          "orders-sql",
			FQDN:          "orders-sql.sim.database.local",
			AdminLogin:    "admin",
			AdminPassword: "hunter2",
		},
		Spec: engine.DatabaseSpec{Name: "orders"},
	})
	want := "Server=tcp:orders-sql.sim.database.local,1433;Database=orders;User ID=admin;Password=hunter2;Encrypt=true;"
	if db.ConnectionString != want {
		t.Errorf("connection string = %q", db.ConnectionString)
	}
}

func TestDeclareFunctionHostAddresses(t *testing.T) {
	req := scopedRequest[engine.FunctionHostSpec]{
		Group: engine.Group{Name: "orders-rg"},
		Spec:  engine.FunctionHostSpec{Name: "orders-api"},
	}
	first := call[scopedRequest[engine.FunctionHostSpec], engine.FunctionHost](t, "declare_function_host", req)
	second := call[scopedRequest[engine.FunctionHostSpec], engine.FunctionHost](t, "declare_function_host", req)

	if first.OutboundAddresses != second.OutboundAddresses {
		t.Error("outbound addresses are not stable")
	}
	if got := strings.Split(first.OutboundAddresses, ","); len(got) != 2 {
		t.Errorf("outbound addresses = %q", first.OutboundAddresses)
	}
}

func TestAddressRuleLifecycle(t *testing.T) {
	server := engine.SQLServer{Name: "rules-sql"}
	rule := engine.AddressRule{
		ID:           "allow-10-1-2-1",
		Scope:        "rules-sql",
		StartAddress: "10.1.2.1",
		EndAddress:   "10.1.2.1",
	}

	call[ruleRequest, struct{}](t, "apply_address_rule", ruleRequest{Server: server, Rule: rule})
	call[ruleRequest, struct{}](t, "apply_address_rule", ruleRequest{Server: server, Rule: rule})

	rulesMu.Lock()
	count := len(appliedRules["rules-sql"])
	rulesMu.Unlock()
	if count != 1 {
		t.Fatalf("applying twice left %d rules", count)
	}

	call[retireRequest, struct{}](t, "retire_address_rule", retireRequest{Server: server, RuleID: rule.ID})
	// Retiring an absent rule converges too.
	call[retireRequest, struct{}](t, "retire_address_rule", retireRequest{Server: server, RuleID: rule.ID})

	rulesMu.Lock()
	count = len(appliedRules["rules-sql"])
	rulesMu.Unlock()
	if count != 0 {
		t.Fatalf("%d rules left after retirement", count)
	}
}

func TestUnknownOperation(t *testing.T) {
	msg := callError(t, "declare_quantum_computer", struct{}{})
	if !strings.Contains(msg, "unknown operation") {
		t.Errorf("error = %q", msg)
	}
}

func TestMalformedPayload(t *testing.T) {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respond("declare_group", []byte("{not json")), &envelope); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(envelope.Error, "decoding request") {
		t.Errorf("error = %q", envelope.Error)
	}
}
