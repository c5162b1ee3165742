// Package report renders a resolution result to a file, choosing the
// encoder by extension: .json, .yaml/.yml or .toml.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"arr/internal/resolve"
)

// Write encodes the result to path.
func Write(path string, result *resolve.Result) error {
	data, err := Encode(filepath.Ext(path), result)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Encode renders the result in the format named by ext.
func Encode(ext string, result *resolve.Result) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return json.MarshalIndent(result, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(result)
	case ".toml":
		return toml.Marshal(result)
	default:
		return nil, fmt.Errorf("unsupported report format %q", ext)
	}
}
