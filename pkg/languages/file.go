package languages

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// tableFile is the on-disk layout of a language-pair table.
//
//	hub: {tag: en, name: English, code: eng_Latn}
//	languages:
//	  - {tag: fr, name: French, code: fra_Latn}
//	pairs:
//	  - {source: fr, target: de, source_name: French, target_name: German,
//	     source_code: fra_Latn, target_code: deu_Latn}
//
// hub and languages expand to both directions; pairs adds single directions.
type tableFile struct {
	Hub       *Language    `yaml:"hub"`
	Languages []Language   `yaml:"languages"`
	Pairs     []Definition `yaml:"pairs"`
}

// LoadFile reads a YAML language-pair table and builds a Registry from it.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read language table %s: %w", path, err)
	}
	r, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("language table %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a YAML language-pair table from r.
func Parse(r io.Reader) (*Registry, error) {
	var tf tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty language table")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	var defs []Definition
	if tf.Hub != nil {
		defs = append(defs, HubDefinitions(*tf.Hub, tf.Languages)...)
	} else if len(tf.Languages) > 0 {
		return nil, errors.New("languages require a hub")
	}
	defs = append(defs, tf.Pairs...)

	if len(defs) == 0 {
		return nil, errors.New("no language pairs defined")
	}

	for _, def := range defs {
		if err := validateTag(def.SourceTag); err != nil {
			return nil, err
		}
		if err := validateTag(def.TargetTag); err != nil {
			return nil, err
		}
	}

	return New(defs)
}

// validateTag checks a tag is a well-formed BCP 47 base language with no
// script, region or variant subtags, since pair keys join tags with "-".
func validateTag(tag string) error {
	norm := NormalizeTag(tag)
	t, err := language.Parse(norm)
	if err != nil {
		return fmt.Errorf("invalid language tag %q: %w", tag, err)
	}
	if base, _ := t.Base(); base.String() != norm {
		return fmt.Errorf("invalid language tag %q: must be a base language such as %q", tag, base.String())
	}
	return nil
}
