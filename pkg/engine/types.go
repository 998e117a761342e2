package engine

import "fmt"

// Group is a realized resource scope: the container every other resource of a
// stack is declared into.
type Group struct {
	// Name is the group name.
	Name string `json:"name"`

	// Location is the platform region the group lives in.
	Location string `json:"location"`

	// ID is the platform-assigned identifier.
	ID string `json:"id"`
}

// TelemetrySink is a realized application telemetry resource.
type TelemetrySink struct {
	// Name is the sink name.
	Name string `json:"name"`

	// InstrumentationKey is the platform-generated ingestion key.
	InstrumentationKey string `json:"instrumentation_key"`
}

// SQLServer is a realized database server.
type SQLServer struct {
	// Name is the server name.
	Name string `json:"name"`

	// FQDN is the fully-qualified domain name assigned at provisioning time.
	FQDN string `json:"fqdn"`

	// AdminLogin is the administrative login name.
	AdminLogin string `json:"admin_login"`

	// AdminPassword is the administrative password. Generated by the platform
	// when the spec left it empty.
	AdminPassword string `json:"admin_password"`
}

// Database is a realized database on a SQLServer.
type Database struct {
	// Name is the database name.
	Name string `json:"name"`

	// ServerName is the name of the owning server.
	ServerName string `json:"server_name"`

	// ConnectionString is the full client connection string, including the
	// server FQDN and credentials.
	ConnectionString string `json:"connection_string"`
}

// FunctionHost is a realized serverless compute host.
type FunctionHost struct {
	// Name is the host name.
	Name string `json:"name"`

	// Hostname is the default public hostname assigned at deploy time.
	Hostname string `json:"hostname"`

	// OutboundAddresses is the comma-separated list of addresses the host
	// originates traffic from. Assigned by the platform, never chosen by the
	// caller, and only known after provisioning.
	OutboundAddresses string `json:"outbound_addresses"`
}

// StaticSite is a realized static-asset host backed by an object container.
type StaticSite struct {
	// AccountName is the storage account name.
	AccountName string `json:"account_name"`

	// Container is the object container assets are published into.
	Container string `json:"container"`

	// ConnectionString is the account credential used for uploads.
	ConnectionString string `json:"connection_string"`
}

// AddressRule grants access to a scope from exactly one address: the enabled
// range starts and ends at that address.
//
// The rule identifier is derived deterministically from the address alone so
// that repeated runs update rather than duplicate rules. This is the
// stability contract for idempotent reapplication: the same address always
// yields the same identifier, and rules for addresses no longer present are
// retired by identifier.
type AddressRule struct {
	// ID is the deterministic rule identifier.
	ID string `json:"id"`

	// Scope is the resource the rule is attached to (a SQL server name).
	Scope string `json:"scope"`

	// StartAddress is the first address of the enabled range.
	StartAddress string `json:"start_address"`

	// EndAddress is the last address of the enabled range. Always equal to
	// StartAddress.
	EndAddress string `json:"end_address"`
}

// GroupSpec declares a resource scope.
type GroupSpec struct {
	Name     string
	Location string
}

// TelemetrySinkSpec declares a telemetry sink.
type TelemetrySinkSpec struct {
	Name string
}

// SQLServerSpec declares a database server. An empty AdminPassword asks the
// platform to generate one.
type SQLServerSpec struct {
	Name          string
	AdminLogin    string
	AdminPassword string
	Version       string
}

// DatabaseSpec declares a database on a server.
type DatabaseSpec struct {
	Name string
	// Tier is the platform service tier; opaque to the pipeline.
	Tier string
}

// FunctionHostSpec declares a serverless compute host. Env values may be
// deferred: the platform realizes the host only after every referenced value
// resolved.
type FunctionHostSpec struct {
	Name    string
	Runtime string
	// Env is the application environment. Deferred entries are resolved
	// before the host is realized.
	Env map[string]string
}

// StaticSiteSpec declares a static-asset host.
type StaticSiteSpec struct {
	AccountName string
	Container   string
}

// Export is one entry of the final output mapping a deployment produces.
type Export struct {
	// Name is the export name.
	Name string `json:"name"`

	// Value is the resolved export value.
	Value string `json:"value"`
}

func (e Export) String() string { return fmt.Sprintf("%s=%s", e.Name, e.Value) }
