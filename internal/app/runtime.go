package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "IDENTITY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads IDENTITY_TEST_MODE once. Any value strconv.ParseBool
// accepts as true enables test mode.
func detectTestMode() {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testModeFlag.Store(err == nil && on)
}

// InTestMode reports whether binaries should skip connecting to Postgres and
// Redis and the router should skip request logging.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
