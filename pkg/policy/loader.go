package policy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader reads user admission policies from disk.
//
// Two file kinds are understood:
//   - .rego modules. Leading comment lines become the description, except
//     for "# name: <name>" and "# severity: <level>" directives.
//   - .yaml, .yml and .json definitions holding name, description,
//     severity, enabled and the rego source inline.
//
// Every module is parsed when loaded so syntax errors point at the file.
type Loader struct {
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedPolicy

	// reloadDelay debounces bursts of file events.
	reloadDelay time.Duration
}

// cachedPolicy is reused while the file is unchanged.
type cachedPolicy struct {
	modTime time.Time
	size    int64
	policy  Policy
}

// definitionFile is the on-disk shape of a YAML or JSON policy definition.
type definitionFile struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Severity    Severity `yaml:"severity"`
	Enabled     *bool    `yaml:"enabled"`
	Rego        string   `yaml:"rego"`
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:      logger.With().Str("component", "policy-loader").Logger(),
		cache:       make(map[string]cachedPolicy),
		reloadDelay: 500 * time.Millisecond,
	}
}

// LoadFromPaths loads policies from files and directories. A missing path
// or a broken file named directly is an error; broken files found while
// walking a directory are logged and skipped.
func (l *Loader) LoadFromPaths(_ context.Context, paths []string) ([]Policy, error) {
	var policies []Policy

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies from %s: %w", path, err)
		}

		if !info.IsDir() {
			p, err := l.loadFile(path, info)
			if err != nil {
				return nil, err
			}
			policies = append(policies, p)
			continue
		}

		err = filepath.WalkDir(path, func(file string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isPolicyFile(file) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			p, err := l.loadFile(file, fi)
			if err != nil {
				l.logger.Warn().Err(err).Str("path", file).Msg("Skipping policy file")
				return nil
			}
			policies = append(policies, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk policy directory %s: %w", path, err)
		}
	}

	l.logger.Debug().
		Int("policies", len(policies)).
		Int("paths", len(paths)).
		Msg("Policies loaded")

	return policies, nil
}

func isPolicyFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rego", ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func (l *Loader) loadFile(path string, info os.FileInfo) (Policy, error) {
	l.mu.Lock()
	cached, ok := l.cache[path]
	l.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	var p Policy
	if strings.EqualFold(filepath.Ext(path), ".rego") {
		p = parseRegoFile(path, data)
	} else if p, err = parseDefinitionFile(path, data); err != nil {
		return Policy{}, err
	}

	if _, err := ast.ParseModule(path, p.Rego); err != nil {
		return Policy{}, fmt.Errorf("invalid rego in %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = cachedPolicy{modTime: info.ModTime(), size: info.Size(), policy: p}
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", path).
		Str("policy", p.Name).
		Str("severity", string(p.Severity)).
		Msg("Policy file loaded")

	return p, nil
}

// parseRegoFile builds a policy from a rego module and its header comments.
func parseRegoFile(path string, data []byte) Policy {
	p := Policy{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Rego:     string(data),
		Severity: SeverityWarning,
		Enabled:  true,
		Source:   path,
	}

	var description []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if len(description) > 0 {
				break
			}
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}

		comment := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		key, value, found := strings.Cut(comment, ":")
		switch {
		case found && strings.EqualFold(strings.TrimSpace(key), "name"):
			p.Name = strings.TrimSpace(value)
		case found && strings.EqualFold(strings.TrimSpace(key), "severity"):
			p.Severity = Severity(strings.ToLower(strings.TrimSpace(value)))
		case comment != "":
			description = append(description, comment)
		}
	}
	p.Description = strings.Join(description, " ")

	return p
}

// parseDefinitionFile parses a YAML or JSON policy definition.
func parseDefinitionFile(path string, data []byte) (Policy, error) {
	var def definitionFile
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy definition %s: %w", path, err)
	}
	if def.Name == "" {
		return Policy{}, fmt.Errorf("policy definition %s has no name", path)
	}
	if strings.TrimSpace(def.Rego) == "" {
		return Policy{}, fmt.Errorf("policy definition %s has no rego", path)
	}

	p := Policy{
		Name:        def.Name,
		Description: def.Description,
		Rego:        def.Rego,
		Severity:    def.Severity,
		Enabled:     def.Enabled == nil || *def.Enabled,
		Source:      path,
	}
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	return p, nil
}

// Watch calls reloadFn with the freshly loaded policies whenever a policy
// file under paths changes. It returns once watching has started; watching
// stops when ctx is done.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	for _, path := range paths {
		if err := addRecursive(watcher, path); err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Cannot watch policy path")
		}
	}

	go l.watchLoop(ctx, watcher, paths, reloadFn)

	l.logger.Info().Strs("paths", paths).Msg("Watching policy paths")
	return nil
}

func addRecursive(watcher *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(path)
	}
	return filepath.WalkDir(path, func(dir string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		return watcher.Add(dir)
	})
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, paths []string, reloadFn func([]Policy) error) {
	defer watcher.Close()

	reload := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
				}
			}
			if !isPolicyFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}

			l.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Policy file changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(l.reloadDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			policies, err := l.LoadFromPaths(ctx, paths)
			if err != nil {
				l.logger.Error().Err(err).Msg("Failed to reload policies")
				continue
			}
			if err := reloadFn(policies); err != nil {
				l.logger.Error().Err(err).Msg("Failed to apply reloaded policies")
				continue
			}
			l.logger.Info().Int("policies", len(policies)).Msg("Policies reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Policy watcher error")
		}
	}
}
