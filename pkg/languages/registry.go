package languages

import (
	"fmt"
	"strings"
)

// Definition declares one directed translation direction supported by the engine.
type Definition struct {
	// SourceTag and TargetTag are the short tags clients send (e.g., "en", "fr").
	SourceTag string `yaml:"source"`
	TargetTag string `yaml:"target"`
	// SourceName and TargetName are human-readable language names.
	SourceName string `yaml:"source_name"`
	TargetName string `yaml:"target_name"`
	// SourceCode and TargetCode are the engine-specific codes (e.g., "eng_Latn").
	SourceCode string `yaml:"source_code"`
	TargetCode string `yaml:"target_code"`
}

// Entry is the resolved, immutable record for a directed language pair.
type Entry struct {
	SourceName string
	TargetName string
	SourceCode string
	TargetCode string
}

// Listing describes one registered direction for discovery endpoints.
type Listing struct {
	Key        string
	SourceName string
	TargetName string
}

type pairKey struct {
	source string
	target string
}

// Registry is a read-only table of directed language pairs.
// It is built once and safe for concurrent use without locking.
type Registry struct {
	entries map[pairKey]Entry
	order   []pairKey
}

// New builds a Registry from the given definitions.
// Tags are normalized; empty fields and duplicate directions are rejected.
func New(defs []Definition) (*Registry, error) {
	r := &Registry{
		entries: make(map[pairKey]Entry, len(defs)),
		order:   make([]pairKey, 0, len(defs)),
	}

	for i, def := range defs {
		key := pairKey{source: NormalizeTag(def.SourceTag), target: NormalizeTag(def.TargetTag)}
		if key.source == "" || key.target == "" {
			return nil, fmt.Errorf("definition %d: source and target tags are required", i)
		}
		if def.SourceCode == "" || def.TargetCode == "" {
			return nil, fmt.Errorf("definition %d (%s): engine codes are required", i, PairKey(key.source, key.target))
		}
		if def.SourceName == "" || def.TargetName == "" {
			return nil, fmt.Errorf("definition %d (%s): language names are required", i, PairKey(key.source, key.target))
		}
		if _, exists := r.entries[key]; exists {
			return nil, fmt.Errorf("duplicate language pair %s", PairKey(key.source, key.target))
		}

		r.entries[key] = Entry{
			SourceName: def.SourceName,
			TargetName: def.TargetName,
			SourceCode: def.SourceCode,
			TargetCode: def.TargetCode,
		}
		r.order = append(r.order, key)
	}

	return r, nil
}

// Resolve looks up a directed pair. The boolean is false when the pair is not registered.
func (r *Registry) Resolve(sourceTag, targetTag string) (Entry, bool) {
	entry, ok := r.entries[pairKey{source: NormalizeTag(sourceTag), target: NormalizeTag(targetTag)}]
	return entry, ok
}

// List returns every registered direction in table order.
func (r *Registry) List() []Listing {
	out := make([]Listing, 0, len(r.order))
	for _, key := range r.order {
		entry := r.entries[key]
		out = append(out, Listing{
			Key:        PairKey(key.source, key.target),
			SourceName: entry.SourceName,
			TargetName: entry.TargetName,
		})
	}
	return out
}

// Len returns the number of registered directions.
func (r *Registry) Len() int {
	return len(r.order)
}

// PairKey formats a directed pair the way clients see it, e.g. "en-fr".
func PairKey(sourceTag, targetTag string) string {
	return NormalizeTag(sourceTag) + "-" + NormalizeTag(targetTag)
}

// NormalizeTag trims whitespace and lower-cases a client-supplied tag.
// Examples:
//   - "EN" -> "en"
//   - " fr " -> "fr"
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
