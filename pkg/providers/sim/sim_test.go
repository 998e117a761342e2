package sim

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openhoist/openhoist/pkg/deferred"
	"github.com/openhoist/openhoist/pkg/engine"
)

func wait[T any](t *testing.T, v *deferred.Value[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := v.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return out
}

func TestDeclareChainRealizes(t *testing.T) {
	p := New(zerolog.Nop())
	ctx := context.Background()

	group := wait(t, p.DeclareGroup(ctx, engine.GroupSpec{Name: "todo-rg", Location: "westeurope"}))
	if group.ID == "" {
		t.Error("expected platform-assigned group ID")
	}

	server := wait(t, p.DeclareSQLServer(ctx, group, engine.SQLServerSpec{Name: "todo-sql", AdminLogin: "hoist"}))
	if server.FQDN != "todo-sql.sim.database.local" {
		t.Errorf("fqdn = %q", server.FQDN)
	}
	if server.AdminPassword == "" {
		t.Error("expected generated password for empty spec password")
	}

	db := wait(t, p.DeclareDatabase(ctx, server, engine.DatabaseSpec{Name: "todos"}))
	if !strings.Contains(db.ConnectionString, server.FQDN) {
		t.Errorf("connection string missing fqdn: %q", db.ConnectionString)
	}
	if !strings.Contains(db.ConnectionString, "Database=todos") {
		t.Errorf("connection string missing database: %q", db.ConnectionString)
	}
}

func TestExplicitPasswordPreserved(t *testing.T) {
	p := New(zerolog.Nop())
	group := wait(t, p.DeclareGroup(context.Background(), engine.GroupSpec{Name: "g"}))
	server := wait(t, p.DeclareSQLServer(context.Background(), group, engine.SQLServerSpec{
		Name: "s", AdminLogin: "a", AdminPassword: "hunter2",
	}))
	if server.AdminPassword != "hunter2" {
		t.Errorf("password = %q", server.AdminPassword)
	}
}

func TestOutboundAddressesAreStable(t *testing.T) {
	p := New(zerolog.Nop())
	ctx := context.Background()
	group := wait(t, p.DeclareGroup(ctx, engine.GroupSpec{Name: "g"}))

	first := wait(t, p.DeclareFunctionHost(ctx, group, engine.FunctionHostSpec{Name: "todo-fn"}))
	second := wait(t, p.DeclareFunctionHost(ctx, group, engine.FunctionHostSpec{Name: "todo-fn"}))
	if first.OutboundAddresses != second.OutboundAddresses {
		t.Errorf("addresses differ across runs: %q vs %q", first.OutboundAddresses, second.OutboundAddresses)
	}
	if len(strings.Split(first.OutboundAddresses, ",")) != 2 {
		t.Errorf("expected two addresses, got %q", first.OutboundAddresses)
	}

	other := wait(t, p.DeclareFunctionHost(ctx, group, engine.FunctionHostSpec{Name: "other-fn"}))
	if other.OutboundAddresses == first.OutboundAddresses {
		t.Error("distinct hosts should get distinct addresses")
	}
}

func TestDeclareFailsOnMissingName(t *testing.T) {
	p := New(zerolog.Nop())
	v := p.DeclareGroup(context.Background(), engine.GroupSpec{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := v.Wait(ctx); err == nil {
		t.Fatal("expected error for empty group name")
	}
}

func TestRuleConvergenceAndRetire(t *testing.T) {
	p := New(zerolog.Nop())
	ctx := context.Background()
	server := engine.SQLServer{Name: "todo-sql"}

	rule := engine.AddressRule{ID: "allow-1-2-3-4", Scope: "todo-sql", StartAddress: "1.2.3.4", EndAddress: "1.2.3.4"}
	if err := p.ApplyAddressRule(ctx, server, rule); err != nil {
		t.Fatalf("ApplyAddressRule: %v", err)
	}
	if err := p.ApplyAddressRule(ctx, server, rule); err != nil {
		t.Fatalf("ApplyAddressRule twice: %v", err)
	}
	if got := p.Rules("todo-sql"); len(got) != 1 {
		t.Fatalf("expected 1 rule after reapply, got %d", len(got))
	}

	if err := p.RetireAddressRule(ctx, server, "allow-1-2-3-4"); err != nil {
		t.Fatalf("RetireAddressRule: %v", err)
	}
	if err := p.RetireAddressRule(ctx, server, "allow-1-2-3-4"); err != nil {
		t.Fatalf("retiring absent rule should not fail: %v", err)
	}
	if got := p.Rules("todo-sql"); len(got) != 0 {
		t.Fatalf("expected 0 rules after retire, got %d", len(got))
	}
}

func TestLatencyStillSettles(t *testing.T) {
	p := New(zerolog.Nop())
	p.Latency = 10 * time.Millisecond

	v := p.DeclareGroup(context.Background(), engine.GroupSpec{Name: "g"})
	if _, ok := v.Peek(); ok {
		t.Error("value settled before latency elapsed")
	}
	wait(t, v)
}
