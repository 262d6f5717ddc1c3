// Package guard forces test mode on import so package tests never start
// real runtime side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SHIFTLEDGER_TEST_MODE") == "" {
			_ = os.Setenv("SHIFTLEDGER_TEST_MODE", "1")
		}
	})
}
