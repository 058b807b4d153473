// Package status publishes the resolved connection facts of a running
// instance. External orchestration polls for the status file as the signal
// that the network is ready.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the artifact name inside the status directory.
const FileName = "status.json"

// SchemaVersion tags the status file layout.
const SchemaVersion = "1"

// Record is the connection snapshot. It is constructed once after
// configuration succeeds and written at most once.
type Record struct {
	V                          string `json:"v"`
	InstanceID                 int    `json:"instance_id"`
	ConfigPort                 uint16 `json:"config_port"`
	GatewayPort                uint16 `json:"gateway_port"`
	RootKey                    string `json:"root_key"`
	DefaultEffectiveCanisterID string `json:"default_effective_canister_id"`
}

// Write serializes rec to <dir>/status.json, newline-terminated.
func Write(dir string, rec *Record) error {
	contents, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	contents = append(contents, '\n')
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return nil
}
