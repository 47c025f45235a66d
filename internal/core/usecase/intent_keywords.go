package usecase

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadKeywordTables reads keyword-table overrides from a YAML file. Fields
// omitted in the file keep their built-in defaults, so deployments can
// extend a single group without restating the whole vocabulary.
func LoadKeywordTables(path string) (KeywordTables, error) {
	tables := DefaultKeywordTables()
	if path == "" {
		return tables, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return KeywordTables{}, fmt.Errorf("read keyword tables: %w", err)
	}

	var overrides KeywordTables
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return KeywordTables{}, fmt.Errorf("parse keyword tables: %w", err)
	}

	if len(overrides.Image) > 0 {
		tables.Image = overrides.Image
	}
	if len(overrides.Text) > 0 {
		tables.Text = overrides.Text
	}
	if len(overrides.Table) > 0 {
		tables.Table = overrides.Table
	}
	if len(overrides.Connectors) > 0 {
		tables.Connectors = overrides.Connectors
	}
	if len(overrides.Domains) > 0 {
		tables.Domains = overrides.Domains
	}
	if len(overrides.Enhanced) > 0 {
		tables.Enhanced = overrides.Enhanced
	}
	if overrides.ComplexitySimpleMax > 0 {
		tables.ComplexitySimpleMax = overrides.ComplexitySimpleMax
	}
	if overrides.ComplexityMediumMax > 0 {
		tables.ComplexityMediumMax = overrides.ComplexityMediumMax
	}
	return tables, nil
}
