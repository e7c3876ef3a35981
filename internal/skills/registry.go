package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/haasonsaas/scribe/internal/observability"
)

// Registry discovers skills under a root directory and serves lookups.
// Rescans replace the whole set atomically.
type Registry struct {
	root   string
	logger *observability.Logger

	mu     sync.RWMutex
	byName map[string]*Skill

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry creates a registry rooted at dir and performs an initial scan.
// A missing directory is not an error; the registry is just empty.
func NewRegistry(dir string, logger *observability.Logger) (*Registry, error) {
	r := &Registry{
		root:   dir,
		logger: logger,
		byName: make(map[string]*Skill),
	}
	if err := r.Rescan(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Root returns the directory the registry scans.
func (r *Registry) Root() string {
	return r.root
}

// Rescan walks the root directory and replaces the skill set.
// Each immediate subdirectory holding a SKILL.md is one skill; parse
// failures skip that skill without failing the scan.
func (r *Registry) Rescan(ctx context.Context) error {
	info, err := os.Stat(r.root)
	if os.IsNotExist(err) {
		r.mu.Lock()
		r.byName = make(map[string]*Skill)
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat skills directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", r.root)
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("read skills directory: %w", err)
	}

	found := make(map[string]*Skill)
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !entry.IsDir() {
			continue
		}

		skillFile := filepath.Join(r.root, entry.Name(), SkillFilename)
		if _, err := os.Stat(skillFile); os.IsNotExist(err) {
			continue
		}

		skill, err := ParseSkillFile(skillFile)
		if err != nil {
			r.logger.Warn(ctx, "failed to parse skill",
				"path", skillFile,
				"error", err)
			continue
		}

		found[skill.Name] = skill
	}

	r.mu.Lock()
	r.byName = found
	r.mu.Unlock()

	r.logger.Debug(ctx, "discovered skills", "count", len(found), "path", r.root)
	return nil
}

// Get returns the skill with the given name.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.byName[name]
	return skill, ok
}

// List returns all skills sorted by name.
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Skill, 0, len(r.byName))
	for _, skill := range r.byName {
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Watch starts a filesystem watcher that rescans on any change under the
// root. Stop the registry to release the watcher.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.root); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", r.root, err)
	}

	r.watcher = watcher
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := r.Rescan(ctx); err != nil {
					r.logger.Warn(ctx, "skill rescan failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn(ctx, "skill watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop closes the watcher if one is running.
func (r *Registry) Stop() {
	if r.watcher != nil {
		r.watcher.Close()
		<-r.done
		r.watcher = nil
	}
}
