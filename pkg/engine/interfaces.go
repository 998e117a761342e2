package engine

import (
	"context"

	"github.com/openhoist/openhoist/pkg/deferred"
)

// Platform is the SPI capability providers implement. How a declaration maps
// to provider API calls is opaque to the pipeline: the simulated platform
// synthesizes properties in-process, while plugin platforms delegate to a
// WASM module.
//
// Declare methods return immediately with a deferred value that the platform
// resolves once the resource is realized (or fails with the provisioning
// cause). Declarations run in both preview and apply passes; in preview the
// platform resolves simulated placeholder properties so that dependent
// declarations and pure transformations still evaluate.
//
// Parent resources are passed resolved, not deferred: callers sequence
// declarations with deferred.Then so a child is only declared after its
// parents realized.
type Platform interface {
	// DeclareGroup declares the resource scope of a stack.
	DeclareGroup(ctx context.Context, spec GroupSpec) *deferred.Value[Group]

	// DeclareTelemetrySink declares an application telemetry resource inside
	// the group.
	DeclareTelemetrySink(ctx context.Context, group Group, spec TelemetrySinkSpec) *deferred.Value[TelemetrySink]

	// DeclareSQLServer declares a database server inside the group.
	DeclareSQLServer(ctx context.Context, group Group, spec SQLServerSpec) *deferred.Value[SQLServer]

	// DeclareDatabase declares a database on a realized server.
	DeclareDatabase(ctx context.Context, server SQLServer, spec DatabaseSpec) *deferred.Value[Database]

	// DeclareFunctionHost declares a serverless compute host inside the
	// group. The platform assigns the outbound address list at deploy time.
	DeclareFunctionHost(ctx context.Context, group Group, spec FunctionHostSpec) *deferred.Value[FunctionHost]

	// DeclareStaticSite declares a static-asset host inside the group.
	DeclareStaticSite(ctx context.Context, group Group, spec StaticSiteSpec) *deferred.Value[StaticSite]

	// ApplyAddressRule creates or updates a single-address access rule on the
	// server. Applying an identical rule twice converges.
	ApplyAddressRule(ctx context.Context, server SQLServer, rule AddressRule) error

	// RetireAddressRule removes a rule by its deterministic identifier.
	// Retiring an absent rule is not an error.
	RetireAddressRule(ctx context.Context, server SQLServer, ruleID string) error

	// Close releases provider resources.
	Close(ctx context.Context) error
}
