package mcp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchStdin_KeepsRunningWhileParentAlive(t *testing.T) {
	old := parentPollInterval
	parentPollInterval = 5 * time.Millisecond
	t.Cleanup(func() { parentPollInterval = old })

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var canceled atomic.Bool
	WatchStdin(ctx, nil, func() { canceled.Store(true) })

	time.Sleep(50 * time.Millisecond)
	if canceled.Load() {
		t.Fatal("cancelFn called while the parent is still alive")
	}
}

func TestWatchStdin_StopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	WatchStdin(ctx, nil, cancel)
	cancel()

	// The goroutine must neither panic nor block after cancellation.
	time.Sleep(20 * time.Millisecond)
}
