package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// SettingsStore is the string-keyed settings blob. Values are stored as
// strings; structured settings (shared variables) encode JSON into them.
type SettingsStore struct {
	path string
	log  zerolog.Logger
}

// NewSettingsStore creates the store, seeding an empty object when the file
// does not exist yet.
func NewSettingsStore(path string, log zerolog.Logger) (*SettingsStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := atomicWrite(path, []byte("{}")); err != nil {
			return nil, fmt.Errorf("seed settings file: %w", err)
		}
	}
	return &SettingsStore{path: path, log: log}, nil
}

func (s *SettingsStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out, nil
}

func (s *SettingsStore) save(settings map[string]string) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return atomicWrite(s.path, data)
}

// Get returns the setting's value, "" when absent.
func (s *SettingsStore) Get(key string) (string, error) {
	settings, err := s.load()
	if err != nil {
		return "", err
	}
	return settings[key], nil
}

// Set stores one setting.
func (s *SettingsStore) Set(key, value string) error {
	settings, err := s.load()
	if err != nil {
		return err
	}
	settings[key] = value
	return s.save(settings)
}

const sharedVariablesKey = "shared_variables"

// sharedEntry is one shared-variable definition: a plain string or a list
// (pools), tagged so pop persistence keeps the declared shape.
type sharedEntry struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// SharedVariables decodes the shared-variable definitions into the seed map
// for the process-wide store. List entries stay lists; everything else is
// carried as-is.
func (s *SettingsStore) SharedVariables() (map[string]any, error) {
	raw, err := s.Get(sharedVariablesKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var entries map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode shared variables: %w", err)
	}
	out := make(map[string]any, len(entries))
	for key, entry := range entries {
		// Tagged {type, value} entries unwrap; bare values pass through.
		if tagged, ok := entry.(map[string]any); ok {
			if value, exists := tagged["value"]; exists {
				out[key] = value
				continue
			}
		}
		out[key] = entry
	}
	return out, nil
}

// PersistSharedVar writes one shared variable back, keeping its declared
// type: list entries re-split the raw value into trimmed non-empty lines.
// Part of the executor's settings writer contract.
func (s *SettingsStore) PersistSharedVar(key, raw string) error {
	stored, err := s.Get(sharedVariablesKey)
	if err != nil {
		return err
	}
	entries := map[string]any{}
	if strings.TrimSpace(stored) != "" {
		if err := json.Unmarshal([]byte(stored), &entries); err != nil {
			s.log.Warn().Err(err).Msg("shared variables blob unreadable, rewriting")
			entries = map[string]any{}
		}
	}

	typ := "string"
	if tagged, ok := entries[key].(map[string]any); ok {
		if t, _ := tagged["type"].(string); t != "" {
			typ = t
		}
	}
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	var value any = normalized
	if typ == "list" {
		lines := []string{}
		for _, line := range strings.Split(normalized, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
		value = lines
	}
	entries[key] = sharedEntry{Type: typ, Value: value}

	encoded, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode shared variables: %w", err)
	}
	return s.Set(sharedVariablesKey, string(encoded))
}
