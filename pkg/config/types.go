package config

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openhoist/openhoist/pkg/engine"
)

// Manifest is the root of a stack manifest file.
type Manifest struct {
	// Stack is the stack name, used as the state store key.
	Stack string `json:"stack" yaml:"stack" validate:"required"`

	// Environment tags the deployment (dev, staging, prod).
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`

	Group     GroupManifest     `json:"group" yaml:"group" validate:"required"`
	Telemetry TelemetryManifest `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	SQL       SQLManifest       `json:"sql" yaml:"sql" validate:"required"`
	Functions FunctionsManifest `json:"functions" yaml:"functions" validate:"required"`
	Site      SiteManifest      `json:"site" yaml:"site" validate:"required"`
	Endpoint  EndpointManifest  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Signing   SigningManifest   `json:"signing,omitempty" yaml:"signing,omitempty"`
}

// GroupManifest declares the resource group everything else lives in.
type GroupManifest struct {
	Name     string `json:"name" yaml:"name" validate:"required"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

// TelemetryManifest declares the telemetry sink resource.
type TelemetryManifest struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// SQLManifest declares the database server and database.
type SQLManifest struct {
	ServerName string `json:"server_name" yaml:"server_name" validate:"required"`
	AdminLogin string `json:"admin_login" yaml:"admin_login" validate:"required"`
	// AdminPassword may be empty; the platform then generates one.
	AdminPassword string `json:"admin_password,omitempty" yaml:"admin_password,omitempty"`
	Version       string `json:"version,omitempty" yaml:"version,omitempty"`
	Database      string `json:"database" yaml:"database" validate:"required"`
	Tier          string `json:"tier,omitempty" yaml:"tier,omitempty"`
}

// FunctionsManifest declares the serverless function host.
type FunctionsManifest struct {
	Name    string `json:"name" yaml:"name" validate:"required"`
	Runtime string `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	// Env is extra application environment merged on top of the entries
	// the orchestrator derives from upstream resources.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// SiteManifest declares the static site and its local asset root.
type SiteManifest struct {
	AccountName string `json:"account_name" yaml:"account_name" validate:"required"`
	Container   string `json:"container,omitempty" yaml:"container,omitempty"`

	// AssetRoot is the local directory published to the container.
	AssetRoot string `json:"asset_root" yaml:"asset_root" validate:"required"`

	// RewriteScript is an optional path to a Starlark script with a
	// rewrite(name, content, values) function applied to each asset.
	RewriteScript string `json:"rewrite_script,omitempty" yaml:"rewrite_script,omitempty"`
}

// EndpointManifest declares the external endpoint query.
type EndpointManifest struct {
	// Command is the subprocess invoked to resolve the public endpoint.
	// Empty means no endpoint resolution.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	// ExportName is the export key for the resolved endpoint.
	// Defaults to "endpoint".
	ExportName string `json:"export_name,omitempty" yaml:"export_name,omitempty"`
}

// SigningManifest controls signed-URL minting for published assets.
type SigningManifest struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// TTL is the signed-URL validity. Zero means the publisher default.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// Duration accepts Go duration strings ("2h", "30m") in manifests.
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MaxSigningTTL caps signed-URL validity declared in a manifest.
const MaxSigningTTL = 7 * 24 * time.Hour

// DefaultContainer is used when the site manifest omits a container name.
const DefaultContainer = "site"

// DefaultEndpointExport is the export key used when the manifest omits one.
const DefaultEndpointExport = "endpoint"

// applyDefaults fills optional fields the schema leaves open.
func (m *Manifest) applyDefaults() {
	if m.Site.Container == "" {
		m.Site.Container = DefaultContainer
	}
	if m.Endpoint.ExportName == "" {
		m.Endpoint.ExportName = DefaultEndpointExport
	}
	if m.Telemetry.Name == "" {
		m.Telemetry.Name = m.Stack + "-telemetry"
	}
}

// GroupSpec converts the manifest entry into an engine declaration.
func (m *Manifest) GroupSpec() engine.GroupSpec {
	return engine.GroupSpec{Name: m.Group.Name, Location: m.Group.Location}
}

// TelemetrySpec converts the manifest entry into an engine declaration.
func (m *Manifest) TelemetrySpec() engine.TelemetrySinkSpec {
	return engine.TelemetrySinkSpec{Name: m.Telemetry.Name}
}

// SQLServerSpec converts the manifest entry into an engine declaration.
func (m *Manifest) SQLServerSpec() engine.SQLServerSpec {
	return engine.SQLServerSpec{
		Name:          m.SQL.ServerName,
		AdminLogin:    m.SQL.AdminLogin,
		AdminPassword: m.SQL.AdminPassword,
		Version:       m.SQL.Version,
	}
}

// DatabaseSpec converts the manifest entry into an engine declaration.
func (m *Manifest) DatabaseSpec() engine.DatabaseSpec {
	return engine.DatabaseSpec{Name: m.SQL.Database, Tier: m.SQL.Tier}
}

// SiteSpec converts the manifest entry into an engine declaration.
func (m *Manifest) SiteSpec() engine.StaticSiteSpec {
	return engine.StaticSiteSpec{
		AccountName: m.Site.AccountName,
		Container:   m.Site.Container,
	}
}
