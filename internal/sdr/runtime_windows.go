//go:build windows && amd64

package sdr

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindRuntime locates a capture tool shipped next to the executable or the
// working directory under bin/<tool>/windows/x64.
func FindRuntime(runtime string) (string, error) {
	var lookup []string

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	lookup = append(lookup, filepath.Dir(exePath))

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	lookup = append(lookup, wd)

	for _, dir := range lookup {
		matches, err := filepath.Glob(filepath.Join(dir, "bin", "*", "windows", "x64", runtime+".exe"))
		if err != nil || len(matches) == 0 {
			continue
		}
		if _, err = os.Stat(matches[0]); err != nil {
			continue
		}
		return matches[0], nil
	}

	return "", NewRuntimeError(fmt.Sprintf("`%s.exe` not found under bin/", runtime))
}
