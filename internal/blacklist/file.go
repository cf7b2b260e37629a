package blacklist

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML form of a blacklist.
type File struct {
	Subjects []string `yaml:"subjects"`
	Terms    []string `yaml:"terms"`
}

// LoadFile reads a YAML blacklist file.
func LoadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("reading blacklist %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parsing blacklist %s: %w", path, err)
	}
	return f, nil
}

// SaveFile writes the Set to path atomically.
func SaveFile(path string, s *Set) error {
	data, err := yaml.Marshal(File{
		Subjects: s.List(Subjects),
		Terms:    s.List(Terms),
	})
	if err != nil {
		return fmt.Errorf("encoding blacklist: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blacklist-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp blacklist file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing blacklist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing blacklist: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming blacklist: %w", err)
	}
	return nil
}

// Load builds a Set from the defaults (unless skipDefaults) plus the file at
// path (if non-empty).
func Load(path string, skipDefaults bool) (*Set, error) {
	s := New()
	if !skipDefaults {
		s = NewWithDefaults()
	}
	if path == "" {
		return s, nil
	}
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.Add(Subjects, f.Subjects...)
	s.Add(Terms, f.Terms...)
	return s, nil
}
