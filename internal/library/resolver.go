// Package library assembles a single ExtendScript payload from a user
// script and a set of requested library names, resolving transitive
// dependencies from a manifest and guarding against symbol collisions.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// UserScriptSentinel precedes the user's payload in the assembled output.
const UserScriptSentinel = "// === User Script ==="

// Resolver resolves library includes against a manifest directory. Manifest
// load and file-content reads are each memoized under their own mutex, per
// §4.5's thread-safety requirement.
type Resolver struct {
	dir    string
	logger *slog.Logger

	manifestMu sync.Mutex
	manifest   *Manifest

	fileMu    sync.Mutex
	fileCache map[string]string

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// New builds a Resolver rooted at dir (the directory containing
// manifest.json and the library files it references).
func New(dir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		dir:       dir,
		logger:    logger.With("component", "library_resolver"),
		fileCache: make(map[string]string),
	}
}

func (r *Resolver) loadManifest() (*Manifest, error) {
	r.manifestMu.Lock()
	defer r.manifestMu.Unlock()

	if r.manifest != nil {
		return r.manifest, nil
	}
	m, err := loadManifest(r.dir)
	if err != nil {
		return nil, err
	}
	r.manifest = m
	return m, nil
}

func (r *Resolver) readFile(path string) (string, error) {
	r.fileMu.Lock()
	if content, ok := r.fileCache[path]; ok {
		r.fileMu.Unlock()
		return content, nil
	}
	r.fileMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("library file not found: %s", filepath.Base(path))
	}
	content := string(data)

	r.fileMu.Lock()
	r.fileCache[path] = content
	r.fileMu.Unlock()

	return content, nil
}

// ClearCache drops both the manifest and file-content caches. Tests use
// this to force a reload between cases; the fsnotify watch loop (when
// started) calls it automatically on change.
func (r *Resolver) ClearCache() {
	r.manifestMu.Lock()
	r.manifest = nil
	r.manifestMu.Unlock()

	r.fileMu.Lock()
	r.fileCache = make(map[string]string)
	r.fileMu.Unlock()
}

// Resolve performs depth-first resolution of includes against the
// manifest's dependency graph, detects symbol collisions, and concatenates
// library contents in post-order (dependencies before dependents). Falls
// back to simple ordered concatenation of "<name>.jsx" files when no
// manifest is present.
func (r *Resolver) Resolve(includes []string) (string, error) {
	if len(includes) == 0 {
		return "", nil
	}

	manifest, err := r.loadManifest()
	if err != nil {
		return "", err
	}
	if len(manifest.Libraries) == 0 {
		return r.simpleResolve(includes)
	}

	var resolved []string
	seen := make(map[string]bool)
	exports := make(map[string]string) // symbol -> owning library

	var resolveOne func(name string) error
	resolveOne = func(name string) error {
		if seen[name] {
			return nil
		}
		entry, ok := manifest.Libraries[name]
		if !ok {
			return fmt.Errorf("unknown library: %s", name)
		}

		for _, dep := range entry.Dependencies {
			if err := resolveOne(dep); err != nil {
				return err
			}
		}

		for _, symbol := range entry.Exports {
			if owner, collides := exports[symbol]; collides {
				return fmt.Errorf("symbol collision: %q defined in both %q and %q", symbol, owner, name)
			}
			exports[symbol] = name
		}

		content, err := r.readFile(filepath.Join(r.dir, entry.File))
		if err != nil {
			return fmt.Errorf("library file not found: %s", entry.File)
		}
		resolved = append(resolved, content)
		seen[name] = true
		return nil
	}

	for _, name := range includes {
		if err := resolveOne(name); err != nil {
			return "", err
		}
	}

	return strings.Join(resolved, "\n\n"), nil
}

func (r *Resolver) simpleResolve(includes []string) (string, error) {
	var parts []string
	for _, name := range includes {
		path := filepath.Join(r.dir, name+".jsx")
		content, err := r.readFile(path)
		if err != nil {
			return "", fmt.Errorf("library not found: %s.jsx (looked in %s)", name, r.dir)
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n"), nil
}

// Inject resolves includes and prepends the result to script, separated by
// UserScriptSentinel. An empty includes list returns script unchanged.
func (r *Resolver) Inject(script string, includes []string) (string, error) {
	if len(includes) == 0 {
		return script, nil
	}
	code, err := r.Resolve(includes)
	if err != nil {
		return "", err
	}
	return code + "\n\n" + UserScriptSentinel + "\n" + script, nil
}

// WatchForChanges hot-reloads the manifest and library files when they
// change on disk, clearing the caches so the next Resolve re-reads them.
// A missing directory is tolerated (watch simply never fires).
func (r *Resolver) WatchForChanges(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("library watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("library watcher add %s: %w", r.dir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	r.watchMu.Lock()
	r.watcher = watcher
	r.cancel = cancel
	r.watchMu.Unlock()

	go r.watchLoop(watchCtx, watcher)
	return nil
}

func (r *Resolver) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				r.logger.Debug("library source changed, clearing caches", "path", event.Name)
				r.ClearCache()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("library watcher error", "error", err)
		}
	}
}

// Close stops the file watcher started by WatchForChanges, if any.
func (r *Resolver) Close() {
	r.watchMu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.watchMu.Unlock()
	if cancel != nil {
		cancel()
	}
}
