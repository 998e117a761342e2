package stack

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openhoist/openhoist/pkg/assets"
	"github.com/openhoist/openhoist/pkg/config"
	"github.com/openhoist/openhoist/pkg/deferred"
	"github.com/openhoist/openhoist/pkg/endpoint"
	"github.com/openhoist/openhoist/pkg/engine"
	"github.com/openhoist/openhoist/pkg/objectstore"
	"github.com/openhoist/openhoist/pkg/policy"
	"github.com/openhoist/openhoist/pkg/rules"
	"github.com/openhoist/openhoist/pkg/stores"
)

// PlaceholderToken is substituted with the resolved API endpoint in every
// asset when the manifest configures no rewrite script.
const PlaceholderToken = "__API_ENDPOINT__"

// Options wires an orchestrator. Manifest, Platform, Store, and Mode are
// required; the rest defaults to working no-op implementations.
type Options struct {
	Manifest *config.Manifest
	Platform engine.Platform
	Store    objectstore.Store
	Mode     engine.Mode

	// State persists deployment runs and firewall rule state. Nil keeps
	// rule state in memory for the lifetime of the orchestrator.
	State stores.Store

	// Policy gates effects. Nil disables the gate.
	Policy *policy.Engine

	// Runner executes the endpoint query subprocess. Nil uses ExecRunner.
	Runner endpoint.Runner

	// Rewrite overrides the default placeholder substitution. Loaded from
	// the manifest's rewrite script by the CLI.
	Rewrite *config.RewriteHook

	Log    zerolog.Logger
	Tracer trace.Tracer

	// EffectObserver and PublishObserver feed telemetry. Either may be nil.
	EffectObserver  engine.EffectObserver
	PublishObserver assets.Observer
}

// Result is the outcome of one deployment run.
type Result struct {
	// DeploymentID identifies the recorded run. Empty without a state store.
	DeploymentID string

	// Mode is the pass the run executed in.
	Mode engine.Mode

	// Graph is the declared resource topology in dependency order.
	Graph *engine.PlanGraph

	// Exports is the final named output mapping, sorted by name.
	Exports []engine.Export

	// Objects are the published assets. In preview the signed URLs are
	// empty placeholders.
	Objects []assets.PublishedObject

	// Rules are the firewall rules synthesized from the function host's
	// outbound addresses.
	Rules []engine.AddressRule

	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Orchestrator drives one stack deployment.
type Orchestrator struct {
	manifest *config.Manifest
	platform engine.Platform
	store    objectstore.Store
	state    stores.Store
	policy   *policy.Engine
	rewrite  *config.RewriteHook

	effects   *engine.EffectRunner
	publisher *assets.Publisher
	resolver  *endpoint.Resolver
	synth     *rules.Synthesizer

	mode   engine.Mode
	log    zerolog.Logger
	tracer trace.Tracer
}

// New wires an orchestrator from options.
func New(opts Options) (*Orchestrator, error) {
	if opts.Manifest == nil {
		return nil, fmt.Errorf("manifest is required")
	}
	if opts.Platform == nil {
		return nil, fmt.Errorf("platform is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if opts.Mode != engine.ModePreview && opts.Mode != engine.ModeApply {
		return nil, fmt.Errorf("invalid mode %q", opts.Mode)
	}

	runner := opts.Runner
	if runner == nil {
		runner = endpoint.ExecRunner{}
	}

	var ruleState rules.StateStore
	if opts.State != nil {
		ruleState = opts.State
	} else {
		ruleState = newMemoryRuleState()
	}

	log := opts.Log.With().Str("component", "orchestrator").Str("stack", opts.Manifest.Stack).Logger()
	effects := engine.NewEffectRunner(opts.Mode, opts.Log, opts.EffectObserver)

	return &Orchestrator{
		manifest:  opts.Manifest,
		platform:  opts.Platform,
		store:     opts.Store,
		state:     opts.State,
		policy:    opts.Policy,
		rewrite:   opts.Rewrite,
		effects:   effects,
		publisher: assets.NewPublisher(opts.Store, effects, opts.Log, opts.Tracer, opts.PublishObserver),
		resolver:  endpoint.NewResolver(runner, effects, opts.Log),
		synth:     rules.NewSynthesizer(opts.Platform, ruleState, effects, opts.Log),
		mode:      opts.Mode,
		log:       log,
		tracer:    opts.Tracer,
	}, nil
}

// Graph returns the declared resource topology without deploying.
func (o *Orchestrator) Graph() (*engine.PlanGraph, error) {
	return buildGraph(o.manifest)
}

// Deploy runs the full pipeline. It is all-or-nothing: any fatal failure
// aborts the run and no exports are returned.
func (o *Orchestrator) Deploy(ctx context.Context) (*Result, error) {
	start := time.Now()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "stack.deploy")
		defer span.End()
	}

	graph, err := buildGraph(o.manifest)
	if err != nil {
		return nil, err
	}

	deploymentID, err := o.recordStart(ctx)
	if err != nil {
		return nil, err
	}

	result, err := o.run(ctx, graph)
	if err != nil {
		o.recordEnd(ctx, deploymentID, stores.DeploymentStatusFailed, err)
		return nil, err
	}
	result.DeploymentID = deploymentID
	result.Duration = time.Since(start)

	o.recordEnd(ctx, deploymentID, stores.DeploymentStatusSucceeded, nil)
	o.persistOutputs(ctx, deploymentID, result)

	o.log.Info().
		Str("mode", string(o.mode)).
		Int("exports", len(result.Exports)).
		Int("objects", len(result.Objects)).
		Int("rules", len(result.Rules)).
		Dur("duration", result.Duration).
		Msg("deployment finished")

	return result, nil
}

// run declares the stack and chains every effect onto the deferred values
// it depends on.
func (o *Orchestrator) run(ctx context.Context, graph *engine.PlanGraph) (*Result, error) {
	m := o.manifest

	if err := o.checkPolicy(ctx, nil, nil); err != nil {
		return nil, err
	}

	group := o.platform.DeclareGroup(ctx, m.GroupSpec())

	sink := deferred.Then(group, func(g engine.Group) (*deferred.Value[engine.TelemetrySink], error) {
		return o.platform.DeclareTelemetrySink(ctx, g, m.TelemetrySpec()), nil
	})

	server := deferred.Then(group, func(g engine.Group) (*deferred.Value[engine.SQLServer], error) {
		return o.platform.DeclareSQLServer(ctx, g, m.SQLServerSpec()), nil
	})

	db := deferred.Then(server, func(s engine.SQLServer) (*deferred.Value[engine.Database], error) {
		return o.platform.DeclareDatabase(ctx, s, m.DatabaseSpec()), nil
	})

	// The function host waits for the database and the telemetry sink: its
	// environment embeds the connection string and the instrumentation key.
	host := deferred.Then(deferred.Join3(group, db, sink),
		func(t deferred.Tuple3[engine.Group, engine.Database, engine.TelemetrySink]) (*deferred.Value[engine.FunctionHost], error) {
			env := map[string]string{
				"DATABASE_CONNECTION": t.B.ConnectionString,
				"TELEMETRY_KEY":       t.C.InstrumentationKey,
			}
			for k, v := range m.Functions.Env {
				env[k] = v
			}
			spec := engine.FunctionHostSpec{
				Name:    m.Functions.Name,
				Runtime: m.Functions.Runtime,
				Env:     env,
			}
			return o.platform.DeclareFunctionHost(ctx, t.A, spec), nil
		})

	site := deferred.Then(group, func(g engine.Group) (*deferred.Value[engine.StaticSite], error) {
		return o.platform.DeclareStaticSite(ctx, g, m.SiteSpec()), nil
	})

	// Firewall rules follow from the host's platform-assigned outbound
	// addresses. Policy runs on the expanded set before anything is written.
	synced := deferred.Map(deferred.Join2(server, host),
		func(t deferred.Tuple2[engine.SQLServer, engine.FunctionHost]) ([]engine.AddressRule, error) {
			expanded := rules.Expand(t.A.Name, t.B.OutboundAddresses)
			if err := o.checkPolicy(ctx, expanded, nil); err != nil {
				return nil, err
			}
			return o.synth.Sync(ctx, t.A, t.B.OutboundAddresses)
		})

	// Endpoint resolution. Without a query command the host's hostname is
	// the endpoint.
	apiEndpoint := deferred.Map(host, func(h engine.FunctionHost) (string, error) {
		value, err := o.resolveEndpoint(ctx, h)
		if err != nil {
			return "", err
		}
		if err := o.checkPolicy(ctx, nil, map[string]string{m.Endpoint.ExportName: value}); err != nil {
			return "", err
		}
		return value, nil
	})

	// Publishing waits for the site and the endpoint: the endpoint may be
	// rewritten into assets before upload.
	published := deferred.Map(deferred.Join2(site, apiEndpoint),
		func(t deferred.Tuple2[engine.StaticSite, string]) ([]assets.PublishedObject, error) {
			return o.publish(ctx, t.B)
		})

	// Terminal waits. The deferred graph has been running since the first
	// declaration; from here on the orchestrator only collects.
	dbVal, err := db.Wait(ctx)
	if err != nil {
		return nil, err
	}
	ruleSet, err := synced.Wait(ctx)
	if err != nil {
		return nil, err
	}
	endpointVal, err := apiEndpoint.Wait(ctx)
	if err != nil {
		return nil, err
	}
	objects, err := published.Wait(ctx)
	if err != nil {
		return nil, err
	}
	siteVal, err := site.Wait(ctx)
	if err != nil {
		return nil, err
	}

	exports := []engine.Export{
		{Name: "database_connection", Value: dbVal.ConnectionString},
		{Name: m.Endpoint.ExportName, Value: endpointVal},
		{Name: "site_account", Value: siteVal.AccountName},
		{Name: "site_container", Value: siteVal.Container},
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].Name < exports[j].Name })

	return &Result{
		Mode:    o.mode,
		Graph:   graph,
		Exports: exports,
		Objects: objects,
		Rules:   ruleSet,
	}, nil
}

// resolveEndpoint runs the manifest's query command, or falls back to the
// host's public hostname.
func (o *Orchestrator) resolveEndpoint(ctx context.Context, h engine.FunctionHost) (string, error) {
	cmd := o.manifest.Endpoint.Command
	if len(cmd) == 0 {
		return "https://" + h.Hostname, nil
	}
	return o.resolver.Resolve(ctx, cmd[0], cmd[1:]...)
}

// publish uploads the asset tree with the endpoint substituted in.
func (o *Orchestrator) publish(ctx context.Context, endpointVal string) ([]assets.PublishedObject, error) {
	opts := assets.Options{
		Sign:    o.manifest.Signing.Enabled,
		SignFor: time.Duration(o.manifest.Signing.TTL),
	}

	if o.rewrite != nil {
		opts.Rewrite = o.rewrite.Bind(map[string]string{
			"API_ENDPOINT": endpointVal,
		})
	} else if endpointVal != "" {
		token := []byte(PlaceholderToken)
		replacement := []byte(endpointVal)
		opts.Rewrite = func(name string, data []byte) ([]byte, error) {
			if !bytes.Contains(data, token) {
				return data, nil
			}
			return bytes.ReplaceAll(data, token, replacement), nil
		}
	}

	return o.publisher.Publish(ctx, o.manifest.Site.AssetRoot, opts)
}

// checkPolicy evaluates the policy gate with whatever facts are known at
// the call site. A nil policy engine allows everything.
func (o *Orchestrator) checkPolicy(ctx context.Context, ruleSet []engine.AddressRule, endpoints map[string]string) error {
	if o.policy == nil {
		return nil
	}

	input := &policy.Input{
		Stack:       o.manifest.Stack,
		Environment: o.manifest.Environment,
		Mode:        string(o.mode),
		Rules:       ruleSet,
		Endpoints:   endpoints,
	}
	if o.manifest.Signing.Enabled {
		input.SigningTTLSeconds = int64(time.Duration(o.manifest.Signing.TTL) / time.Second)
	}

	result, err := o.policy.Evaluate(ctx, input)
	if err != nil {
		return engine.NewPolicyError(err)
	}
	if !result.Allowed {
		violations := result.Errors()
		return engine.NewPolicyError(fmt.Errorf("blocked by %s: %s", violations[0].Policy, violations[0].Message))
	}
	return nil
}

// recordStart opens a deployment run in the state store.
func (o *Orchestrator) recordStart(ctx context.Context) (string, error) {
	if o.state == nil {
		return "", nil
	}
	id := uuid.New().String()
	err := o.state.CreateDeployment(ctx, &stores.Deployment{
		ID:        id,
		Stack:     o.manifest.Stack,
		Mode:      o.mode,
		Status:    stores.DeploymentStatusRunning,
		StartedAt: time.Now(),
	})
	if err != nil {
		return "", engine.NewStateError("create deployment", err)
	}
	return id, nil
}

// recordEnd closes the run. State failures at this point are logged, not
// returned: the deployment outcome stands.
func (o *Orchestrator) recordEnd(ctx context.Context, id string, status stores.DeploymentStatus, cause error) {
	if o.state == nil || id == "" {
		return
	}
	var msg *string
	if cause != nil {
		s := cause.Error()
		msg = &s
	}
	if err := o.state.CompleteDeployment(ctx, id, status, msg); err != nil {
		o.log.Error().Err(err).Str("deployment_id", id).Msg("failed to record deployment completion")
	}
}

// persistOutputs saves exports and published objects for a successful apply.
func (o *Orchestrator) persistOutputs(ctx context.Context, id string, result *Result) {
	if o.state == nil || id == "" || !o.mode.IsApply() {
		return
	}
	if err := o.state.SaveExports(ctx, id, result.Exports); err != nil {
		o.log.Error().Err(err).Msg("failed to persist exports")
	}
	if len(result.Objects) > 0 {
		if err := o.state.RecordPublishedObjects(ctx, id, result.Objects); err != nil {
			o.log.Error().Err(err).Msg("failed to persist published objects")
		}
	}
}

// buildGraph renders the declared topology for plan output.
func buildGraph(m *config.Manifest) (*engine.PlanGraph, error) {
	nodes := []engine.PlanNode{
		{Name: m.Group.Name, Type: "group"},
		{Name: m.Telemetry.Name, Type: "telemetry-sink", DependsOn: []string{m.Group.Name}},
		{Name: m.SQL.ServerName, Type: "sql-server", DependsOn: []string{m.Group.Name}},
		{Name: m.SQL.Database, Type: "database", DependsOn: []string{m.SQL.ServerName}},
		{Name: m.Functions.Name, Type: "function-host", DependsOn: []string{m.SQL.Database, m.Telemetry.Name}},
		{Name: m.Site.AccountName, Type: "static-site", DependsOn: []string{m.Group.Name}},
		{Name: m.SQL.ServerName + "/firewall", Type: "firewall-rules", DependsOn: []string{m.SQL.ServerName, m.Functions.Name}},
		{Name: m.Endpoint.ExportName, Type: "endpoint", DependsOn: []string{m.Functions.Name}},
		{Name: m.Site.AccountName + "/assets", Type: "assets", DependsOn: []string{m.Site.AccountName, m.Endpoint.ExportName}},
	}
	return engine.NewGraphBuilder().Build(nodes)
}
