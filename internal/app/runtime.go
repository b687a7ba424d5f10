package app

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/joho/godotenv"
)

const (
	testModeEnv = "ODYSSEY_TEST_MODE"
	envFileEnv  = "ODYSSEY_ENV_FILE"
)

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the binaries should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// LoadEnvFile loads variables from ODYSSEY_ENV_FILE (default ".env") without
// overriding ones already set. A missing file is not an error.
func LoadEnvFile() error {
	path := os.Getenv(envFileEnv)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	RefreshTestMode()
	return nil
}
