package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("IDENTITY_TEST_MODE", "1")
		if os.Getenv("AUTHZ_LOOKUP_TIMEOUT") == "" {
			_ = os.Setenv("AUTHZ_LOOKUP_TIMEOUT", "200ms")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
