// Package testing switches binaries into test mode when imported by a test.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// ensureTestMode keeps main packages from dialing Redis or the analytics backend.
func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("RPAY_TEST_MODE", "1")
		if os.Getenv("API_BASE_URL") == "" {
			_ = os.Setenv("API_BASE_URL", "http://127.0.0.1:0")
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
