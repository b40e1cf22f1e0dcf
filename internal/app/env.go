package app

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded by the CLI before configuration is resolved.
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads dotenv files into the process environment. Later files
// override earlier ones, and variables already set in the process win over
// every file. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	// godotenv.Load never overwrites, so walk from the highest priority file down
	for i := len(paths) - 1; i >= 0; i-- {
		p := strings.TrimSpace(paths[i])
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}
