// Package runctx carries request-scoped run state through the call tree of
// one in-flight chat request. Tool implementations invoked by the engine
// read the active scope to route generated files to the right conversation
// without explicit parameter threading.
//
// Scopes ride on context.Context, so two concurrent requests never observe
// each other's values. A process-wide registry of active scopes exists only
// so teardown is observable; it never leaks values across requests.
package runctx

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

type scopeKey struct{}

// Scope holds the values one request propagates to code running underneath it.
type Scope struct {
	// ConversationID is the session owning this request.
	ConversationID string

	// ArtifactDir is where tools write generated files for this conversation.
	ArtifactDir string

	// RunID identifies this engine run. Unique per Begin call.
	RunID string

	endOnce sync.Once
}

var (
	activeMu sync.RWMutex
	active   = make(map[string]*Scope)

	fallbackMu  sync.RWMutex
	fallbackDir = filepath.Join(os.TempDir(), "scribe", "artifacts")
)

// Begin establishes a new scope for a request and returns the derived
// context carrying it. It must be called exactly once per request before the
// engine run starts; the returned scope's End must run on every exit path.
func Begin(ctx context.Context, conversationID, artifactDir string) (context.Context, *Scope) {
	s := &Scope{
		ConversationID: conversationID,
		ArtifactDir:    artifactDir,
		RunID:          uuid.NewString(),
	}

	activeMu.Lock()
	active[s.RunID] = s
	activeMu.Unlock()

	return context.WithValue(ctx, scopeKey{}, s), s
}

// End tears the scope down. Safe to call more than once; only the first
// call takes effect.
func (s *Scope) End() {
	if s == nil {
		return
	}
	s.endOnce.Do(func() {
		activeMu.Lock()
		delete(active, s.RunID)
		activeMu.Unlock()
	})
}

// Current returns the scope values for the request ctx belongs to.
// The second return is false when ctx carries no scope or the scope has
// already ended.
func Current(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	if !ok || s == nil {
		return Scope{}, false
	}
	if !Active(s.RunID) {
		return Scope{}, false
	}
	return Scope{
		ConversationID: s.ConversationID,
		ArtifactDir:    s.ArtifactDir,
		RunID:          s.RunID,
	}, true
}

// Active reports whether the scope for runID has begun and not yet ended.
func Active(runID string) bool {
	activeMu.RLock()
	_, ok := active[runID]
	activeMu.RUnlock()
	return ok
}

// ActiveCount returns the number of in-flight scopes. Diagnostics only.
func ActiveCount() int {
	activeMu.RLock()
	n := len(active)
	activeMu.RUnlock()
	return n
}

// ArtifactDir returns the output directory tool code should write to:
// the request's artifact dir when a scope is active, else the fixed
// fallback location. Standalone invocations (CLI, tests) land in the
// fallback rather than failing.
func ArtifactDir(ctx context.Context) string {
	if s, ok := Current(ctx); ok && s.ArtifactDir != "" {
		return s.ArtifactDir
	}
	return FallbackDir()
}

// FallbackDir returns the fixed output location used outside request scope.
func FallbackDir() string {
	fallbackMu.RLock()
	defer fallbackMu.RUnlock()
	return fallbackDir
}

// SetFallbackDir overrides the fallback output location. Intended for
// process startup and tests.
func SetFallbackDir(dir string) {
	fallbackMu.Lock()
	fallbackDir = dir
	fallbackMu.Unlock()
}
