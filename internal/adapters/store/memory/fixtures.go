package memory

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"

	"github.com/okian/awards/internal/adapters/store"
)

// LoadFixtures seeds the store from a YAML file of the form
//
//	documents:
//	  ceremonies/2025-oscars:
//	    name: 97th Academy Awards
//	    date: 2025-03-02T00:00:00Z
//
// RFC3339 strings are stored as timestamps so they sort and compare as such.
func (s *Store) LoadFixtures(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read fixtures: %w", err)
	}
	return s.LoadFixturesBytes(raw)
}

// LoadFixturesBytes is LoadFixtures over an in-memory document.
func (s *Store) LoadFixturesBytes(raw []byte) (int, error) {
	parsed, err := yaml.Parser().Unmarshal(raw)
	if err != nil {
		return 0, fmt.Errorf("parse fixtures: %w", err)
	}
	docs, ok := parsed["documents"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("parse fixtures: missing documents map")
	}

	seeded := make(map[string]map[string]any, len(docs))
	for path, v := range docs {
		if _, _, err := store.SplitDocumentPath(path); err != nil {
			return 0, err
		}
		fields, ok := v.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("parse fixtures: %s is not a map", path)
		}
		seeded[path] = normalize(fields).(map[string]any)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for path, fields := range seeded {
		s.docs[path] = fields
	}
	s.notifyLocked()
	return len(seeded), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
		return t
	default:
		return v
	}
}
