// Package wasmhost runs platform plugins as sandboxed WASM modules and
// adapts them to the engine Platform interface.
//
// A plugin exports one function per platform operation plus an allocator
// pair. Requests and responses cross the sandbox boundary as JSON in linear
// memory:
//
//	hoist_alloc(size) -> ptr
//	hoist_free(ptr, size)
//	declare_group(ptr, len) -> packed   // and the other declare_* ops
//
// where packed is (response_ptr << 32) | response_len and the response body
// is {"ok": {...}} or {"error": "..."}.
package wasmhost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// HostConfig tunes the WASM runtime.
type HostConfig struct {
	// CallTimeout bounds a single plugin call. Zero means 30s.
	CallTimeout time.Duration

	// MemoryLimitPages caps plugin memory in 64KiB pages. Zero means 256
	// pages (16MiB).
	MemoryLimitPages uint32
}

// Host owns a running plugin instance.
type Host struct {
	manifest *Manifest
	runtime  wazero.Runtime
	module   api.Module
	timeout  time.Duration
	log      zerolog.Logger

	alloc api.Function
	free  api.Function
}

// NewHost compiles and instantiates the plugin named by the manifest.
func NewHost(ctx context.Context, manifest *Manifest, cfg HostConfig, log zerolog.Logger) (*Host, error) {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.MemoryLimitPages == 0 {
		cfg.MemoryLimitPages = 256
	}

	wasm, err := manifest.LoadModule()
	if err != nil {
		return nil, err
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryLimitPages).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	hostLog := log.With().Str("component", "wasm-host").Str("plugin", manifest.Name).Logger()

	// The only host function plugins get is a log sink. Everything else
	// stays inside the sandbox.
	builder := runtime.NewHostModuleBuilder("env")
	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) {
			msg, ok := mod.Memory().Read(ptr, length)
			if !ok {
				return
			}
			hostLog.Info().Str("plugin_msg", string(msg)).Msg("plugin log")
		}).
		Export("host_log")
	if _, err := builder.Instantiate(ctx); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	module, err := runtime.Instantiate(ctx, wasm)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate plugin module: %w", err)
	}

	h := &Host{
		manifest: manifest,
		runtime:  runtime,
		module:   module,
		timeout:  cfg.CallTimeout,
		log:      hostLog,
	}

	if h.alloc = module.ExportedFunction("hoist_alloc"); h.alloc == nil {
		h.Close(ctx)
		return nil, fmt.Errorf("plugin %s does not export hoist_alloc", manifest.Name)
	}
	if h.free = module.ExportedFunction("hoist_free"); h.free == nil {
		h.Close(ctx)
		return nil, fmt.Errorf("plugin %s does not export hoist_free", manifest.Name)
	}

	return h, nil
}

// response is the envelope every plugin call returns.
type response struct {
	OK    json.RawMessage `json:"ok,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Call invokes an exported plugin function with a JSON request and decodes
// the JSON response into out.
func (h *Host) Call(ctx context.Context, name string, req interface{}, out interface{}) error {
	fn := h.module.ExportedFunction(name)
	if fn == nil {
		return fmt.Errorf("plugin %s does not export %s", h.manifest.Name, name)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	ptr, err := h.writeGuest(ctx, payload)
	if err != nil {
		return err
	}
	defer h.freeGuest(ctx, ptr, uint32(len(payload)))

	results, err := fn.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return fmt.Errorf("%s call failed: %w", name, err)
	}
	if len(results) != 1 {
		return fmt.Errorf("%s returned %d values, want 1", name, len(results))
	}

	respPtr := uint32(results[0] >> 32)
	respLen := uint32(results[0] & 0xffffffff)
	respBytes, ok := h.module.Memory().Read(respPtr, respLen)
	if !ok {
		return fmt.Errorf("%s response out of memory bounds", name)
	}
	// Copy before freeing guest memory.
	body := make([]byte, len(respBytes))
	copy(body, respBytes)
	h.freeGuest(ctx, respPtr, respLen)

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("plugin %s: %s", h.manifest.Name, resp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(resp.OK, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", name, err)
		}
	}
	return nil
}

func (h *Host) writeGuest(ctx context.Context, data []byte) (uint32, error) {
	results, err := h.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("hoist_alloc failed: %w", err)
	}
	ptr := uint32(results[0])
	if !h.module.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("failed to write request into plugin memory")
	}
	return ptr, nil
}

func (h *Host) freeGuest(ctx context.Context, ptr, size uint32) {
	if _, err := h.free.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		h.log.Warn().Err(err).Msg("hoist_free failed")
	}
}

// Manifest returns the plugin manifest.
func (h *Host) Manifest() *Manifest {
	return h.manifest
}

// Close shuts the plugin instance down.
func (h *Host) Close(ctx context.Context) error {
	var firstErr error
	if h.module != nil {
		if err := h.module.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if h.runtime != nil {
		if err := h.runtime.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
