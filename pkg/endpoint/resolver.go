// Package endpoint resolves resource properties that the deferred-value
// graph does not expose directly, by querying the platform control plane
// through a blocking external command and parsing its output.
package endpoint

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openhoist/openhoist/pkg/engine"
)

// Runner executes a control-plane command and captures both output streams.
// The production runner shells out; tests substitute a fixture.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec, relying on the ambient authenticated
// CLI session.
type ExecRunner struct{}

// Run executes the command and captures stdout and stderr separately. A
// non-zero exit is not an error here; the caller inspects the streams and the
// exit status together.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), stderr.Bytes(), &QueryError{
				Command:  name,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("running %s: %w", name, err)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// QueryError reports a control-plane query that produced no usable result,
// carrying the exit status and captured stderr so the failure is diagnosable
// instead of silently swallowed.
type QueryError struct {
	// Command is the invoked command name.
	Command string

	// ExitCode is the subprocess exit status, or -1 when it never ran.
	ExitCode int

	// Stderr is the captured error stream, trimmed.
	Stderr string
}

func (e *QueryError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("control-plane query %s failed (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("control-plane query %s produced no output (exit %d)", e.Command, e.ExitCode)
}

// Resolver performs blocking control-plane lookups. The subprocess invocation
// is a side effect and is gated on the execution mode: a preview resolves to
// an empty placeholder without spawning anything.
type Resolver struct {
	runner  Runner
	effects *engine.EffectRunner
	log     zerolog.Logger
}

// NewResolver creates a resolver using the given runner and effect gate.
func NewResolver(runner Runner, effects *engine.EffectRunner, log zerolog.Logger) *Resolver {
	return &Resolver{
		runner:  runner,
		effects: effects,
		log:     log.With().Str("component", "endpoint").Logger(),
	}
}

// Resolve runs the command, blocks until it terminates, and returns the first
// non-blank line of its standard output with enclosing quotes stripped.
//
// A run that exits without emitting a non-blank line is an explicit
// *QueryError (wrapped as a query failure) rather than a silent empty value.
// In preview mode Resolve returns an empty placeholder and runs nothing.
func (r *Resolver) Resolve(ctx context.Context, name string, args ...string) (string, error) {
	var result string

	ran, err := r.effects.Run(ctx, "query "+name, func(ctx context.Context) error {
		stdout, stderr, err := r.runner.Run(ctx, name, args...)
		if err != nil {
			return err
		}

		line, ok := firstLine(stdout)
		if !ok {
			return &QueryError{Command: name, ExitCode: 0, Stderr: strings.TrimSpace(string(stderr))}
		}
		result = line
		return nil
	})
	if err != nil {
		return "", engine.NewQueryError(name, err)
	}
	if !ran {
		return "", nil
	}

	r.log.Debug().Str("command", name).Str("result", result).Msg("control-plane property resolved")
	return result, nil
}

// firstLine scans output line by line, discards blank lines, and returns the
// first remaining line with surrounding whitespace and enclosing quote
// characters removed. Scanning stops at that line; further output is ignored.
func firstLine(out []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		return trimQuotes(line), true
	}
	return "", false
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
