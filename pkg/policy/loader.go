package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Loader reads .rego policy files from a directory, optionally watching it
// for changes.
type Loader struct {
	log     zerolog.Logger
	watcher *fsnotify.Watcher
}

// NewLoader creates a policy loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{
		log: log.With().Str("component", "policy-loader").Logger(),
	}
}

// LoadDir loads every .rego file under dir recursively. Unreadable files
// are skipped with a warning so a single bad file cannot take down the
// whole policy set.
func (l *Loader) LoadDir(dir string) ([]Policy, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("policy path %s is not a directory", dir)
	}

	var policies []Policy
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		p, err := l.loadFile(path)
		if err != nil {
			l.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable policy file")
			return nil
		}
		policies = append(policies, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk policy dir: %w", err)
	}

	l.log.Info().Int("count", len(policies)).Str("dir", dir).Msg("policies loaded")
	return policies, nil
}

func (l *Loader) loadFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), ".rego")
	return Policy{
		Name:        name,
		Description: extractDescription(string(data)),
		Rego:        string(data),
		Severity:    SeverityError,
		Enabled:     true,
	}, nil
}

// Watch watches dir and pushes the reloaded policy set into the engine on
// each change. It blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, dir string, engine *Engine) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	l.watcher = watcher

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	// Debounce: editors fire several events per save.
	var timer *time.Timer
	reload := func() {
		policies, err := l.LoadDir(dir)
		if err != nil {
			l.log.Error().Err(err).Msg("policy reload failed")
			return
		}
		if err := engine.ReplacePolicies(ctx, policies); err != nil {
			l.log.Error().Err(err).Msg("policy reload rejected, keeping previous set")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".rego") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(250*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Error().Err(err).Msg("policy watcher error")
		}
	}
}

// extractDescription collects the leading comment block of a Rego file.
func extractDescription(src string) string {
	var b strings.Builder
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			if comment != "" {
				if b.Len() > 0 {
					b.WriteString(" ")
				}
				b.WriteString(comment)
			}
		} else if trimmed != "" {
			break
		}
	}
	return b.String()
}
