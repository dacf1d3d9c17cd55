// Package store implements the file-backed persistence consumed by the
// engine: a scenario directory, an accounts file and a settings blob. All
// writes are atomic (temp file + rename) so a crash never leaves a
// half-written JSON behind.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tort1k558/Camouflow/pkg/schema"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// ScenarioStore keeps each scenario as <name>.json inside one directory.
// Lookups fall back to scanning every file's embedded name, so a file
// renamed on disk stays reachable under its stored scenario name.
type ScenarioStore struct {
	dir string
	log zerolog.Logger
}

// NewScenarioStore creates the store and its directory.
func NewScenarioStore(dir string, log zerolog.Logger) (*ScenarioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scenarios dir: %w", err)
	}
	return &ScenarioStore{dir: dir, log: log}, nil
}

// Dir returns the backing directory.
func (s *ScenarioStore) Dir() string { return s.dir }

// safeScenarioName sanitizes a scenario name into a file stem.
func safeScenarioName(name string) string {
	cleaned := unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if cleaned == "" {
		cleaned = "scenario"
	}
	if len(cleaned) > 120 {
		cleaned = cleaned[:120]
	}
	return cleaned
}

// Path returns the file a scenario name resolves to: the direct sanitized
// path when it exists, otherwise the first file whose embedded name matches,
// otherwise the direct path (for creation).
func (s *ScenarioStore) Path(name string) string {
	direct := filepath.Join(s.dir, safeScenarioName(name)+".json")
	if _, err := os.Stat(direct); err == nil {
		return direct
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return direct
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var head struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			continue
		}
		stored := head.Name
		if stored == "" {
			stored = strings.TrimSuffix(entry.Name(), ".json")
		}
		if stored == name {
			return path
		}
	}
	return direct
}

// Load reads and validates the scenario, returning it with its file path for
// hot reload. Implements the executor's scenario source.
func (s *ScenarioStore) Load(name string) (*schema.Scenario, string, error) {
	path := s.Path(name)
	sc, err := schema.LoadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("load scenario %s: %w", name, err)
	}
	return sc, path, nil
}

// Save writes the scenario under its name, reusing an existing file when one
// already answers to that name.
func (s *ScenarioStore) Save(sc *schema.Scenario) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scenario %s: %w", sc.Name, err)
	}
	return atomicWrite(s.Path(sc.Name), data)
}

// Delete removes the scenario file. Deleting a missing scenario is a no-op.
func (s *ScenarioStore) Delete(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Summary is one List entry.
type Summary struct {
	Name        string
	Description string
	Steps       int
	Path        string
}

// List returns every readable scenario sorted by name. Unreadable files are
// logged and skipped.
func (s *ScenarioStore) List() []Summary {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.dir).Msg("scenario dir unreadable")
		return nil
	}
	var out []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		sc, err := schema.LoadFile(path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable scenario")
			continue
		}
		name := sc.Name
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), ".json")
		}
		out = append(out, Summary{Name: name, Description: sc.Description, Steps: len(sc.Steps), Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// atomicWrite writes data to a sibling temp file and renames it over path.
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
