// Package guard flips the binaries into test mode when blank-imported from tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("REMITDESK_TEST_MODE") == "" {
			_ = os.Setenv("REMITDESK_TEST_MODE", "1")
		}
	})
}
