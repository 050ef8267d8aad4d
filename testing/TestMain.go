// Package testing flips binaries into test mode when blank-imported by a test.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CLIENTDOC_TEST_MODE", "1")
		for key, value := range map[string]string{
			"GOTENBERG_URL": "http://127.0.0.1:0",
			"MEDIA_ROOT":    os.TempDir(),
		} {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be delegated to from a package that needs test mode before m.Run.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
