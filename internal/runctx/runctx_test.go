package runctx

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestBeginCurrentEnd(t *testing.T) {
	ctx, scope := Begin(context.Background(), "conv-1", "/tmp/conv-1")
	defer scope.End()

	got, ok := Current(ctx)
	if !ok {
		t.Fatal("Current() not ok inside active scope")
	}
	if got.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want %q", got.ConversationID, "conv-1")
	}
	if got.ArtifactDir != "/tmp/conv-1" {
		t.Errorf("ArtifactDir = %q, want %q", got.ArtifactDir, "/tmp/conv-1")
	}
	if got.RunID == "" {
		t.Error("RunID is empty")
	}
	if !Active(scope.RunID) {
		t.Error("Active() = false for live scope")
	}

	scope.End()
	if Active(scope.RunID) {
		t.Error("Active() = true after End")
	}
	if _, ok := Current(ctx); ok {
		t.Error("Current() ok after End")
	}
}

func TestCurrentOutsideScope(t *testing.T) {
	if _, ok := Current(context.Background()); ok {
		t.Error("Current() ok on bare context")
	}
}

func TestEndIdempotent(t *testing.T) {
	_, scope := Begin(context.Background(), "conv-2", "/tmp/conv-2")
	scope.End()
	scope.End() // must not panic or double-delete someone else's entry
	if Active(scope.RunID) {
		t.Error("scope still active after double End")
	}
}

func TestArtifactDirFallback(t *testing.T) {
	prev := FallbackDir()
	SetFallbackDir("/tmp/standalone")
	defer SetFallbackDir(prev)

	if dir := ArtifactDir(context.Background()); dir != "/tmp/standalone" {
		t.Errorf("ArtifactDir outside scope = %q, want fallback", dir)
	}

	ctx, scope := Begin(context.Background(), "conv-3", "/tmp/conv-3")
	defer scope.End()
	if dir := ArtifactDir(ctx); dir != "/tmp/conv-3" {
		t.Errorf("ArtifactDir inside scope = %q, want %q", dir, "/tmp/conv-3")
	}
}

// Concurrent requests share the process-wide registry but must never see
// each other's values. Each goroutine begins its own scope, reads it back
// from several nested goroutines (simulating tool execution spawned from
// the request path), and verifies every read matches its own Begin values.
func TestConcurrentScopeIsolation(t *testing.T) {
	const sessions = 64

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			conv := fmt.Sprintf("conv-%d", i)
			dir := fmt.Sprintf("/tmp/art-%d", i)
			ctx, scope := Begin(context.Background(), conv, dir)
			defer scope.End()

			var inner sync.WaitGroup
			for j := 0; j < 4; j++ {
				inner.Add(1)
				go func() {
					defer inner.Done()
					got, ok := Current(ctx)
					if !ok {
						t.Errorf("session %d: Current() not ok", i)
						return
					}
					if got.ConversationID != conv || got.ArtifactDir != dir || got.RunID != scope.RunID {
						t.Errorf("session %d: cross-contaminated scope %+v", i, &got)
					}
				}()
			}
			inner.Wait()
		}(i)
	}
	wg.Wait()
}
