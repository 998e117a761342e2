package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/openhoist/openhoist/pkg/config"
	"github.com/openhoist/openhoist/pkg/engine"
	"github.com/openhoist/openhoist/pkg/objectstore"
	"github.com/openhoist/openhoist/pkg/policy"
	"github.com/openhoist/openhoist/pkg/providers/sim"
	"github.com/openhoist/openhoist/pkg/providers/wasmhost"
	"github.com/openhoist/openhoist/pkg/stack"
	"github.com/openhoist/openhoist/pkg/stores"
	"github.com/openhoist/openhoist/pkg/telemetry"
)

// closablePlatform is what both the simulator and WASM plugin platforms
// provide on top of the declaration contract.
type closablePlatform interface {
	engine.Platform
	Close(ctx context.Context) error
}

// deployFlags are the per-run options shared by preview and apply.
type deployFlags struct {
	metricsListen string
	otlpEndpoint  string
	sftpHost      string
	sftpUser      string
	sftpKey       string
	sftpRoot      string
	sftpBaseURL   string
	sftpKnownHost string
}

// runtime holds everything a deployment command needs, wired once.
type runtime struct {
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	manifest *config.Manifest
	platform closablePlatform
	store    objectstore.Store
	state    stores.Store
	policy   *policy.Engine
	rewrite  *config.RewriteHook
}

// newRuntime loads the manifest and wires platform, stores, policies, and
// telemetry from the global and per-command flags.
func newRuntime(ctx context.Context, flags deployFlags) (*runtime, error) {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: logFormat,
		Output: "stderr",
	})
	if err != nil {
		return nil, err
	}
	log := logger.Zerolog()

	loader := config.NewLoader()
	manifest, err := loader.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	if err := loader.Validate(manifest); err != nil {
		return nil, err
	}

	rt := &runtime{logger: logger, manifest: manifest}

	metricsCfg := telemetry.MetricsConfig{Namespace: "openhoist"}
	if flags.metricsListen != "" {
		metricsCfg.Enabled = true
		metricsCfg.ListenAddress = flags.metricsListen
		metricsCfg.Path = "/metrics"
	}
	if rt.metrics, err = telemetry.NewMetrics(metricsCfg); err != nil {
		return nil, err
	}
	if metricsCfg.Enabled {
		if err := rt.metrics.StartMetricsServer(); err != nil {
			return nil, err
		}
	}

	tracingCfg := telemetry.TracingConfig{}
	if flags.otlpEndpoint != "" {
		tracingCfg.Enabled = true
		tracingCfg.Exporter = "otlp"
		tracingCfg.Endpoint = flags.otlpEndpoint
		tracingCfg.Insecure = true
		tracingCfg.SamplingRate = 1.0
	}
	if rt.tracer, err = telemetry.NewTracer(tracingCfg, "openhoist", "", manifest.Environment); err != nil {
		return nil, err
	}

	if rt.platform, err = buildPlatform(ctx, log); err != nil {
		return nil, err
	}

	if rt.store, err = buildObjectStore(manifest, flags, log); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	if statePath != "" {
		if err := openState(ctx, rt); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}

	if rt.policy, err = policy.NewEngine(log); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	if policyDir != "" {
		policies, err := policy.NewLoader(log).LoadDir(policyDir)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		if err := rt.policy.AddPolicies(ctx, policies); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}

	if manifest.Site.RewriteScript != "" {
		rt.rewrite, err = config.LoadRewriteHook(manifest.Site.RewriteScript, config.DefaultRewriteTimeout)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}

	return rt, nil
}

// orchestrator builds the deployment pipeline for the given mode.
func (rt *runtime) orchestrator(mode engine.Mode) (*stack.Orchestrator, error) {
	return stack.New(stack.Options{
		Manifest:        rt.manifest,
		Platform:        rt.platform,
		Store:           rt.store,
		State:           rt.state,
		Policy:          rt.policy,
		Rewrite:         rt.rewrite,
		Mode:            mode,
		Log:             rt.logger.Zerolog(),
		Tracer:          rt.tracer.Tracer(),
		EffectObserver:  rt.metrics,
		PublishObserver: rt.metrics,
	})
}

// Close releases every resource the runtime opened.
func (rt *runtime) Close(ctx context.Context) {
	if rt.state != nil {
		if err := rt.state.Close(); err != nil {
			rt.logger.WithError(err).Warn("closing state store")
		}
	}
	if rt.platform != nil {
		if err := rt.platform.Close(ctx); err != nil {
			rt.logger.WithError(err).Warn("closing platform")
		}
	}
	if rt.tracer != nil {
		if err := rt.tracer.Shutdown(ctx); err != nil {
			rt.logger.WithError(err).Warn("shutting down tracer")
		}
	}
}

// buildPlatform selects the provider backend: a WASM plugin when --plugin
// is given, the deterministic simulator otherwise.
func buildPlatform(ctx context.Context, log zerolog.Logger) (closablePlatform, error) {
	if pluginPath == "" {
		return sim.New(log), nil
	}

	manifest, err := wasmhost.LoadManifest(pluginPath)
	if err != nil {
		return nil, err
	}
	host, err := wasmhost.NewHost(ctx, manifest, wasmhost.HostConfig{}, log)
	if err != nil {
		return nil, err
	}
	return wasmhost.NewPlatform(host), nil
}

// buildObjectStore picks the publish target. SFTP flags select a remote
// container; otherwise assets land in an in-process store, which a preview
// never writes to anyway.
func buildObjectStore(m *config.Manifest, flags deployFlags, log zerolog.Logger) (objectstore.Store, error) {
	if flags.sftpHost == "" {
		baseURL := fmt.Sprintf("https://%s.local/%s", m.Site.AccountName, m.Site.Container)
		return objectstore.NewMemory(baseURL, []byte(m.Stack)), nil
	}

	if flags.sftpKnownHost == "" {
		return nil, fmt.Errorf("--sftp-known-hosts is required with --sftp-host")
	}
	hostKeys, err := knownhosts.New(flags.sftpKnownHost)
	if err != nil {
		return nil, fmt.Errorf("loading known hosts: %w", err)
	}

	return objectstore.NewSFTP(objectstore.SFTPConfig{
		Host:            flags.sftpHost,
		User:            flags.sftpUser,
		PrivateKeyPath:  flags.sftpKey,
		RemoteRoot:      flags.sftpRoot,
		BaseURL:         flags.sftpBaseURL,
		HostKeyCallback: hostKeys,
	}, log)
}

// openState opens and migrates the SQLite state database at statePath.
func openState(ctx context.Context, rt *runtime) error {
	if dir := filepath.Dir(statePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	state, err := stores.NewSQLiteStore(stores.Config{Path: statePath})
	if err != nil {
		return err
	}
	if err := state.Init(ctx); err != nil {
		return err
	}
	if err := state.Migrate(ctx); err != nil {
		state.Close()
		return err
	}
	rt.state = state
	return nil
}
