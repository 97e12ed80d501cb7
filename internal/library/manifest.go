package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// LibraryEntry is one named entry in a manifest: where its source lives,
// what it depends on, and which symbols it exports.
type LibraryEntry struct {
	File         string   `json:"file"`
	Version      string   `json:"version,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Exports      []string `json:"exports,omitempty"`
}

// Manifest is the read-only name→entry mapping the resolver walks.
type Manifest struct {
	Version   string                  `json:"version,omitempty"`
	Libraries map[string]LibraryEntry `json:"libraries"`
}

// loadManifest reads manifest.json (or manifest.json5, tried second) from
// dir. A missing manifest is not an error — it signals fallback mode — but
// a malformed one is.
func loadManifest(dir string) (*Manifest, error) {
	for _, name := range []string{"manifest.json", "manifest.json5"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read manifest %s: %w", path, err)
		}

		var m Manifest
		var unmarshal func([]byte, any) error = json.Unmarshal
		if strings.HasSuffix(name, ".json5") {
			unmarshal = json5.Unmarshal
		}
		if err := unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", path, err)
		}
		if m.Libraries == nil {
			m.Libraries = map[string]LibraryEntry{}
		}
		return &m, nil
	}

	return &Manifest{Libraries: map[string]LibraryEntry{}}, nil
}
