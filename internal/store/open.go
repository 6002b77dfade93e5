package store

import (
	"fmt"
	"os"
	"strings"
)

// Backend names a Store implementation selectable from the CLI.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
	BackendMemory Backend = "memory"
)

// EnvDBPath overrides the on-disk location of the selected backend.
const EnvDBPath = "REPOINVEST_DB"

// ParseBackend maps a flag value to a Backend. Empty means sqlite.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendSQLite:
		return BackendSQLite, nil
	case BackendBadger:
		return BackendBadger, nil
	case BackendMemory:
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("unknown store backend %q (want sqlite, badger or memory)", s)
	}
}

// ResolvePath returns the flag value if set, else $REPOINVEST_DB, else the
// backend default.
func ResolvePath(b Backend, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvDBPath); env != "" {
		return env
	}
	if b == BackendBadger {
		return DefaultBadgerDir
	}
	return DefaultDBPath
}

// OpenBackend opens the Store for b at path.
func OpenBackend(b Backend, path string) (Store, error) {
	switch b {
	case BackendSQLite:
		return Open(path)
	case BackendBadger:
		return OpenBadger(path)
	case BackendMemory:
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", b)
	}
}
