// Package sim provides an in-process Platform implementation. It realizes
// declarations with deterministic synthetic properties, which makes it the
// backend for previews, local runs, and tests.
package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openhoist/openhoist/pkg/deferred"
	"github.com/openhoist/openhoist/pkg/engine"
)

// Platform simulates a cloud provider. Every Declare method resolves its
// deferred value on a separate goroutine, so dependent declarations exercise
// the same asynchrony a remote provider would.
type Platform struct {
	mu     sync.Mutex
	rules  map[string]map[string]engine.AddressRule
	closed bool

	log zerolog.Logger

	// Latency delays each resolution, exercising out-of-order settlement.
	Latency time.Duration
}

// New creates a simulated platform.
func New(log zerolog.Logger) *Platform {
	return &Platform{
		rules: make(map[string]map[string]engine.AddressRule),
		log:   log.With().Str("component", "sim-platform").Logger(),
	}
}

// resolve settles out on a goroutine after the configured latency.
func resolve[T any](p *Platform, out *deferred.Value[T], fn func() (T, error)) {
	go func() {
		if p.Latency > 0 {
			time.Sleep(p.Latency)
		}
		v, err := fn()
		if err != nil {
			out.Fail(err)
			return
		}
		out.Resolve(v)
	}()
}

// DeclareGroup declares the resource scope of a stack.
func (p *Platform) DeclareGroup(ctx context.Context, spec engine.GroupSpec) *deferred.Value[engine.Group] {
	out := deferred.Pending[engine.Group]()
	resolve(p, out, func() (engine.Group, error) {
		if spec.Name == "" {
			return engine.Group{}, fmt.Errorf("group name is required")
		}
		p.log.Debug().Str("group", spec.Name).Msg("group realized")
		return engine.Group{
			Name:     spec.Name,
			Location: spec.Location,
			ID:       "/sim/groups/" + spec.Name,
		}, nil
	})
	return out
}

// DeclareTelemetrySink declares a telemetry resource inside the group.
func (p *Platform) DeclareTelemetrySink(ctx context.Context, group engine.Group, spec engine.TelemetrySinkSpec) *deferred.Value[engine.TelemetrySink] {
	out := deferred.Pending[engine.TelemetrySink]()
	resolve(p, out, func() (engine.TelemetrySink, error) {
		return engine.TelemetrySink{
			Name:               spec.Name,
			InstrumentationKey: deterministicKey("ikey", group.Name, spec.Name),
		}, nil
	})
	return out
}

// DeclareSQLServer declares a database server inside the group.
func (p *Platform) DeclareSQLServer(ctx context.Context, group engine.Group, spec engine.SQLServerSpec) *deferred.Value[engine.SQLServer] {
	out := deferred.Pending[engine.SQLServer]()
	resolve(p, out, func() (engine.SQLServer, error) {
		if spec.Name == "" {
			return engine.SQLServer{}, fmt.Errorf("sql server name is required")
		}
		password := spec.AdminPassword
		if password == "" {
			password = uuid.NewString()
		}
		return engine.SQLServer{
			Name:          spec.Name,
			FQDN:          spec.Name + ".sim.database.local",
			AdminLogin:    spec.AdminLogin,
			AdminPassword: password,
		}, nil
	})
	return out
}

// DeclareDatabase declares a database on a realized server.
func (p *Platform) DeclareDatabase(ctx context.Context, server engine.SQLServer, spec engine.DatabaseSpec) *deferred.Value[engine.Database] {
	out := deferred.Pending[engine.Database]()
	resolve(p, out, func() (engine.Database, error) {
		if spec.Name == "" {
			return engine.Database{}, fmt.Errorf("database name is required")
		}
		conn := fmt.Sprintf(
			"Server=tcp:%s,1433;Database=%s;User ID=%s;Password=%s;Encrypt=true;",
			server.FQDN, spec.Name, server.AdminLogin, server.AdminPassword,
		)
		return engine.Database{
			Name:             spec.Name,
			ServerName:       server.Name,
			ConnectionString: conn,
		}, nil
	})
	return out
}

// DeclareFunctionHost declares a serverless compute host inside the group.
// The outbound address list is synthesized deterministically from the host
// name, mirroring how a real platform assigns it at deploy time.
func (p *Platform) DeclareFunctionHost(ctx context.Context, group engine.Group, spec engine.FunctionHostSpec) *deferred.Value[engine.FunctionHost] {
	out := deferred.Pending[engine.FunctionHost]()
	resolve(p, out, func() (engine.FunctionHost, error) {
		if spec.Name == "" {
			return engine.FunctionHost{}, fmt.Errorf("function host name is required")
		}
		return engine.FunctionHost{
			Name:              spec.Name,
			Hostname:          spec.Name + ".sim.functions.local",
			OutboundAddresses: outboundAddresses(spec.Name),
		}, nil
	})
	return out
}

// DeclareStaticSite declares a static-asset host inside the group.
func (p *Platform) DeclareStaticSite(ctx context.Context, group engine.Group, spec engine.StaticSiteSpec) *deferred.Value[engine.StaticSite] {
	out := deferred.Pending[engine.StaticSite]()
	resolve(p, out, func() (engine.StaticSite, error) {
		if spec.AccountName == "" {
			return engine.StaticSite{}, fmt.Errorf("static site account name is required")
		}
		return engine.StaticSite{
			AccountName:      spec.AccountName,
			Container:        spec.Container,
			ConnectionString: "AccountName=" + spec.AccountName + ";AccountKey=" + deterministicKey("key", group.Name, spec.AccountName),
		}, nil
	})
	return out
}

// ApplyAddressRule creates or updates a rule. Applying twice converges.
func (p *Platform) ApplyAddressRule(ctx context.Context, server engine.SQLServer, rule engine.AddressRule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("platform is closed")
	}
	scope := p.rules[server.Name]
	if scope == nil {
		scope = make(map[string]engine.AddressRule)
		p.rules[server.Name] = scope
	}
	scope[rule.ID] = rule
	return nil
}

// RetireAddressRule removes a rule. Retiring an absent rule is not an error.
func (p *Platform) RetireAddressRule(ctx context.Context, server engine.SQLServer, ruleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("platform is closed")
	}
	delete(p.rules[server.Name], ruleID)
	return nil
}

// Rules returns the rules currently applied on a server, for inspection.
func (p *Platform) Rules(serverName string) []engine.AddressRule {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]engine.AddressRule, 0, len(p.rules[serverName]))
	for _, r := range p.rules[serverName] {
		out = append(out, r)
	}
	return out
}

// Close releases provider resources.
func (p *Platform) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// outboundAddresses synthesizes a stable two-address list from the host name.
func outboundAddresses(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	sum := h.Sum32()
	a := 1 + sum%250
	b := 1 + (sum>>8)%250
	return fmt.Sprintf("10.%d.%d.1,10.%d.%d.2", a, b, a, b)
}

// deterministicKey synthesizes a stable pseudo-credential.
func deterministicKey(kind string, parts ...string) string {
	h := fnv.New64a()
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return fmt.Sprintf("sim-%s-%016x", kind, h.Sum64())
}
