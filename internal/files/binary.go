package files

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveServerBinary returns the path to the server binary named name.
// An explicit path wins and is returned as-is; the OS exec failure is the
// source of truth for whether it is actually runnable. Otherwise the binary
// is expected to be installed next to the launcher executable.
func ResolveServerBinary(explicit, name string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating launcher executable: %w", err)
	}
	assumed := filepath.Join(filepath.Dir(exe), name)
	if _, err := os.Stat(assumed); err != nil {
		return "", fmt.Errorf("%s not found next to the launcher and no explicit server path provided", name)
	}
	return assumed, nil
}
