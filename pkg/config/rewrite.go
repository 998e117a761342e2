package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.starlark.net/starlark"
)

// RewriteHook wraps a Starlark script whose rewrite(name, content, values)
// function transforms asset text before upload.
type RewriteHook struct {
	fn      starlark.Callable
	timeout time.Duration
}

// DefaultRewriteTimeout bounds a single rewrite call.
const DefaultRewriteTimeout = 10 * time.Second

// LoadRewriteHook loads and executes the script at path and extracts its
// rewrite function.
func LoadRewriteHook(path string, timeout time.Duration) (*RewriteHook, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rewrite script: %w", err)
	}
	return ParseRewriteHook(path, src, timeout)
}

// ParseRewriteHook compiles rewrite script source.
func ParseRewriteHook(filename string, src []byte, timeout time.Duration) (*RewriteHook, error) {
	if timeout <= 0 {
		timeout = DefaultRewriteTimeout
	}

	thread := &starlark.Thread{
		Name: "rewrite",
		Print: func(_ *starlark.Thread, _ string) {
			// Scripts cannot write to the process output.
		},
	}

	globals, err := starlark.ExecFile(thread, filename, src, nil)
	if err != nil {
		return nil, fmt.Errorf("rewrite script failed: %w", err)
	}

	fn, ok := globals["rewrite"]
	if !ok {
		return nil, fmt.Errorf("rewrite script %s does not define rewrite()", filename)
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("rewrite in %s is not callable", filename)
	}

	return &RewriteHook{fn: callable, timeout: timeout}, nil
}

// Rewrite invokes the script for one asset. values carries the resolved
// endpoint and connection values the script may substitute into content.
func (h *RewriteHook) Rewrite(name string, content []byte, values map[string]string) ([]byte, error) {
	dict := starlark.NewDict(len(values))
	for k, v := range values {
		if err := dict.SetKey(starlark.String(k), starlark.String(v)); err != nil {
			return nil, err
		}
	}

	type callResult struct {
		out starlark.Value
		err error
	}
	resultCh := make(chan callResult, 1)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	thread := &starlark.Thread{Name: "rewrite"}
	go func() {
		out, err := starlark.Call(thread, h.fn, starlark.Tuple{
			starlark.String(name),
			starlark.String(content),
			dict,
		}, nil)
		resultCh <- callResult{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		thread.Cancel("rewrite timeout")
		res := <-resultCh
		if res.err != nil {
			return nil, fmt.Errorf("rewrite of %s timed out after %s", name, h.timeout)
		}
		// The call finished just as the timeout fired; accept the result.
		return rewriteOutput(name, content, res.out)
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("rewrite of %s failed: %w", name, res.err)
		}
		return rewriteOutput(name, content, res.out)
	}
}

// Bind fixes the value mapping and adapts the hook to the publisher's
// rewrite signature.
func (h *RewriteHook) Bind(values map[string]string) func(name string, data []byte) ([]byte, error) {
	return func(name string, data []byte) ([]byte, error) {
		return h.Rewrite(name, data, values)
	}
}

func rewriteOutput(name string, original []byte, v starlark.Value) ([]byte, error) {
	// None means keep the asset unchanged.
	if v == starlark.None {
		return original, nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return nil, fmt.Errorf("rewrite of %s returned %s, want string or None", name, v.Type())
	}
	return []byte(s), nil
}
