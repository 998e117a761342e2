package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingObserver struct {
	ran     []string
	skipped []string
}

func (o *recordingObserver) EffectRan(name string, _ time.Duration, _ error) {
	o.ran = append(o.ran, name)
}

func (o *recordingObserver) EffectSkipped(name string) {
	o.skipped = append(o.skipped, name)
}

func TestEffectRunner_PreviewSkipsEffect(t *testing.T) {
	obs := &recordingObserver{}
	runner := NewEffectRunner(ModePreview, zerolog.Nop(), obs)

	invoked := false
	ran, err := runner.Run(context.Background(), "upload-assets", func(context.Context) error {
		invoked = true
		return nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ran {
		t.Error("Expected preview run to report the effect as not run")
	}
	if invoked {
		t.Error("Effect function must not be invoked in preview mode")
	}
	if len(obs.skipped) != 1 || obs.skipped[0] != "upload-assets" {
		t.Errorf("Expected one skipped effect, got: %v", obs.skipped)
	}
}

func TestEffectRunner_ApplyRunsEffect(t *testing.T) {
	obs := &recordingObserver{}
	runner := NewEffectRunner(ModeApply, zerolog.Nop(), obs)

	invoked := false
	ran, err := runner.Run(context.Background(), "firewall-sync", func(context.Context) error {
		invoked = true
		return nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !ran || !invoked {
		t.Errorf("Expected effect to run in apply mode (ran=%v invoked=%v)", ran, invoked)
	}
	if len(obs.ran) != 1 {
		t.Errorf("Expected one observed effect, got: %v", obs.ran)
	}
}

func TestEffectRunner_ApplyPropagatesEffectError(t *testing.T) {
	runner := NewEffectRunner(ModeApply, zerolog.Nop(), nil)

	cause := errors.New("upload failed")
	ran, err := runner.Run(context.Background(), "upload", func(context.Context) error {
		return cause
	})

	if !ran {
		t.Error("Expected effect to have run")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected effect error, got: %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"preview", ModePreview, false},
		{"apply", ModeApply, false},
		{"plan", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = (%v, %v), want %v", tt.in, got, err, tt.want)
		}
	}
}
