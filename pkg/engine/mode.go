package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Mode distinguishes the simulation pass of a deployment run from the real
// execution pass. It is fixed before any resource evaluation begins and is
// threaded explicitly into every side-effecting component; nothing in the
// pipeline reads it from ambient state.
type Mode string

const (
	// ModePreview is the simulation pass: resources are declared and deferred
	// values resolve to simulated properties, but no external mutation
	// happens. Side effects short-circuit to no-ops and return absent
	// results.
	ModePreview Mode = "preview"

	// ModeApply is the real execution pass.
	ModeApply Mode = "apply"
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePreview, ModeApply:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown execution mode %q", s)
	}
}

// IsApply reports whether side effects should actually run.
func (m Mode) IsApply() bool { return m == ModeApply }

// EffectObserver receives notifications about gated side effects. The
// telemetry metrics collector implements it; tests use it to prove that
// preview runs skip every effect.
type EffectObserver interface {
	// EffectRan is called after an effect executed, with its outcome.
	EffectRan(name string, duration time.Duration, err error)

	// EffectSkipped is called when an effect was short-circuited in preview.
	EffectSkipped(name string)
}

// EffectRunner gates side effects on the execution mode. Every file upload,
// subprocess invocation, and remote configuration write in the pipeline goes
// through Run; in preview mode the effect function is never invoked.
//
// Effects must be idempotent with respect to re-execution: an interrupted run
// gives no guarantee that an effect ran to completion, so re-application must
// converge (re-uploads overwrite identically, rule synthesis is keyed by
// address).
type EffectRunner struct {
	mode Mode
	log  zerolog.Logger
	obs  EffectObserver
}

// NewEffectRunner creates an effect runner for the given mode. The observer
// may be nil.
func NewEffectRunner(mode Mode, log zerolog.Logger, obs EffectObserver) *EffectRunner {
	return &EffectRunner{
		mode: mode,
		log:  log.With().Str("component", "effects").Logger(),
		obs:  obs,
	}
}

// Mode returns the execution mode the runner was built with.
func (r *EffectRunner) Mode() Mode { return r.mode }

// Run executes fn when the runner is in apply mode. It returns whether the
// effect actually ran; a preview pass returns (false, nil) and the caller is
// expected to produce a placeholder or absent result instead.
func (r *EffectRunner) Run(ctx context.Context, name string, fn func(context.Context) error) (bool, error) {
	if !r.mode.IsApply() {
		r.log.Debug().Str("effect", name).Msg("skipping side effect in preview")
		if r.obs != nil {
			r.obs.EffectSkipped(name)
		}
		return false, nil
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if r.obs != nil {
		r.obs.EffectRan(name, duration, err)
	}

	if err != nil {
		r.log.Error().Err(err).Str("effect", name).Dur("duration", duration).Msg("side effect failed")
		return true, err
	}

	r.log.Debug().Str("effect", name).Dur("duration", duration).Msg("side effect completed")
	return true, nil
}
