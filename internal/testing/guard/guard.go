package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("IDENTITY_TEST_MODE") == "" {
			_ = os.Setenv("IDENTITY_TEST_MODE", "1")
		}
	})
}
