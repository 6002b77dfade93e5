package mcp

import (
	"context"
	"os"
	"time"

	"repoinvest/internal/logging"
)

// parentPollInterval is how often WatchStdin checks the parent pid.
var parentPollInterval = 2 * time.Second

// WatchStdin monitors for parent process death in a background goroutine.
// When the parent PID changes (the MCP client exited or restarted), it calls
// cancelFn to trigger graceful shutdown so orphaned servers do not linger.
//
// IMPORTANT: This must NOT read from stdin. The SDK's StdioTransport owns
// stdin exclusively; reading here would corrupt the JSON-RPC stream.
//
// The goroutine exits when ctx is canceled or parent death is detected.
func WatchStdin(ctx context.Context, _ any, cancelFn context.CancelFunc) {
	ppid := os.Getppid()
	interval := parentPollInterval
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
				if os.Getppid() != ppid {
					logging.New("mcp").Warn("parent process died, initiating shutdown", "ppid", ppid)
					cancelFn()
					return
				}
			}
		}
	}()
}
