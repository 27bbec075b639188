// Package guard switches binaries into test mode when imported by tests that
// build the full router or worker.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ATLAS_TEST_MODE") == "" {
			_ = os.Setenv("ATLAS_TEST_MODE", "1")
		}
	})
}
