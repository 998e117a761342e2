package wasmhost

import (
	"context"

	"github.com/openhoist/openhoist/pkg/deferred"
	"github.com/openhoist/openhoist/pkg/engine"
)

// Platform adapts a plugin host to the engine Platform interface. Each
// declaration is one plugin call executed on its own goroutine; the deferred
// value settles with the decoded result or the call error.
type Platform struct {
	host *Host
}

// NewPlatform wraps a running host.
func NewPlatform(host *Host) *Platform {
	return &Platform{host: host}
}

func declare[S any, T any](p *Platform, ctx context.Context, op string, req S) *deferred.Value[T] {
	out := deferred.Pending[T]()
	go func() {
		var result T
		if err := p.host.Call(ctx, op, req, &result); err != nil {
			out.Fail(engine.NewResolutionError(op, err))
			return
		}
		out.Resolve(result)
	}()
	return out
}

type scopedRequest[S any] struct {
	Group engine.Group `json:"group"`
	Spec  S            `json:"spec"`
}

// DeclareGroup declares the resource scope of a stack.
func (p *Platform) DeclareGroup(ctx context.Context, spec engine.GroupSpec) *deferred.Value[engine.Group] {
	return declare[engine.GroupSpec, engine.Group](p, ctx, "declare_group", spec)
}

// DeclareTelemetrySink declares a telemetry resource inside the group.
func (p *Platform) DeclareTelemetrySink(ctx context.Context, group engine.Group, spec engine.TelemetrySinkSpec) *deferred.Value[engine.TelemetrySink] {
	req := scopedRequest[engine.TelemetrySinkSpec]{Group: group, Spec: spec}
	return declare[scopedRequest[engine.TelemetrySinkSpec], engine.TelemetrySink](p, ctx, "declare_telemetry_sink", req)
}

// DeclareSQLServer declares a database server inside the group.
func (p *Platform) DeclareSQLServer(ctx context.Context, group engine.Group, spec engine.SQLServerSpec) *deferred.Value[engine.SQLServer] {
	req := scopedRequest[engine.SQLServerSpec]{Group: group, Spec: spec}
	return declare[scopedRequest[engine.SQLServerSpec], engine.SQLServer](p, ctx, "declare_sql_server", req)
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

// DeclareDatabase declares a database on a realized server.
func (p *Platform) DeclareDatabase(ctx context.Context, server engine.SQLServer, spec engine.DatabaseSpec) *deferred.Value[engine.Database] {
	req := databaseRequest{Server: server, Spec: spec}
	return declare[databaseRequest, engine.Database](p, ctx, "declare_database", req)
}

// DeclareFunctionHost declares a serverless compute host inside the group.
func (p *Platform) DeclareFunctionHost(ctx context.Context, group engine.Group, spec engine.FunctionHostSpec) *deferred.Value[engine.FunctionHost] {
	req := scopedRequest[engine.FunctionHostSpec]{Group: group, Spec: spec}
	return declare[scopedRequest[engine.FunctionHostSpec], engine.FunctionHost](p, ctx, "declare_function_host", req)
}

// DeclareStaticSite declares a static-asset host inside the group.
func (p *Platform) DeclareStaticSite(ctx context.Context, group engine.Group, spec engine.StaticSiteSpec) *deferred.Value[engine.StaticSite] {
	req := scopedRequest[engine.StaticSiteSpec]{Group: group, Spec: spec}
	return declare[scopedRequest[engine.StaticSiteSpec], engine.StaticSite](p, ctx, "declare_static_site", req)
}

// ApplyAddressRule creates or updates a single-address rule on the server.
func (p *Platform) ApplyAddressRule(ctx context.Context, server engine.SQLServer, rule engine.AddressRule) error {
	return p.host.Call(ctx, "apply_address_rule", ruleRequest{Server: server, Rule: rule}, nil)
}

// RetireAddressRule removes a rule by identifier.
func (p *Platform) RetireAddressRule(ctx context.Context, server engine.SQLServer, ruleID string) error {
	return p.host.Call(ctx, "retire_address_rule", retireRequest{Server: server, RuleID: ruleID}, nil)
}

// Close shuts the plugin down.
func (p *Platform) Close(ctx context.Context) error {
	return p.host.Close(ctx)
}
