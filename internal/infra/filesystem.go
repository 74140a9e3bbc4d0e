package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// EnsureWorkDir expands a home-relative base path, joins the parts and creates the directory.
func EnsureWorkDir(base string, path ...string) (string, error) {
	expanded, err := homedir.Expand(base)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", base, err)
	}
	workDir := filepath.Join(append([]string{expanded}, path...)...)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", workDir, err)
	}
	return workDir, nil
}
