package importer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMappingPath is where operators keep the editable column mapping
const DefaultMappingPath = "configs/mapping/devices.yaml"

// Device fields a column can map to
const (
	FieldType         = "type"
	FieldBrand        = "brand"
	FieldModel        = "model"
	FieldDescription  = "description"
	FieldSerialNumber = "serial_number"
	FieldAssignedTo   = "assigned_to"
	FieldStatus       = "status"
)

var knownFields = map[string]bool{
	FieldType:         true,
	FieldBrand:        true,
	FieldModel:        true,
	FieldDescription:  true,
	FieldSerialNumber: true,
	FieldAssignedTo:   true,
	FieldStatus:       true,
}

// MappingConfig represents the YAML mapping configuration
type MappingConfig struct {
	Version int    `yaml:"version"`
	Sheet   string `yaml:"sheet"`
	// Aliases lists the accepted header spellings per device field
	Aliases map[string][]string `yaml:"aliases"`
	// Defaults fill fields whose cell is blank
	Defaults map[string]string `yaml:"defaults"`
	// Values rewrites cell values per field; keys are matched lowercase
	Values map[string]map[string]string `yaml:"values"`
}

// DefaultMapping is used when no mapping file is available
func DefaultMapping() *MappingConfig {
	return &MappingConfig{
		Version: 1,
		Aliases: map[string][]string{
			FieldType:         {"Type", "Device Type"},
			FieldBrand:        {"Brand", "Manufacturer", "Vendor"},
			FieldModel:        {"Model"},
			FieldDescription:  {"Description", "Notes"},
			FieldSerialNumber: {"Serial Number", "Serial", "S/N"},
			FieldAssignedTo:   {"Assigned To", "Assignee"},
			FieldStatus:       {"Status"},
		},
		Defaults: map[string]string{
			FieldStatus: "available",
		},
	}
}

// LoadMapping reads and validates a mapping file
func LoadMapping(path string) (*MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}
	return ParseMapping(data)
}

// ParseMapping decodes and validates a YAML mapping document
func ParseMapping(data []byte) (*MappingConfig, error) {
	var m MappingConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that the mapping only names device fields and that the
// required fields have at least one header alias.
func (m *MappingConfig) Validate() error {
	if m.Version != 1 {
		return fmt.Errorf("mapping: unsupported version %d", m.Version)
	}
	for field := range m.Aliases {
		if !knownFields[field] {
			return fmt.Errorf("mapping: unknown field %q in aliases", field)
		}
	}
	for field := range m.Defaults {
		if !knownFields[field] {
			return fmt.Errorf("mapping: unknown field %q in defaults", field)
		}
	}
	for field := range m.Values {
		if !knownFields[field] {
			return fmt.Errorf("mapping: unknown field %q in values", field)
		}
	}
	for _, field := range []string{FieldType, FieldBrand, FieldModel} {
		if len(m.Aliases[field]) == 0 && m.Defaults[field] == "" {
			return fmt.Errorf("mapping: field %q needs an alias or a default", field)
		}
	}
	return nil
}

// fieldFor returns the device field a header cell maps to, or ""
func (m *MappingConfig) fieldFor(header string) string {
	header = strings.TrimSpace(header)
	for field, aliases := range m.Aliases {
		for _, alias := range aliases {
			if strings.EqualFold(alias, header) {
				return field
			}
		}
	}
	return ""
}

// normalize applies the values table of field to a cell value
func (m *MappingConfig) normalize(field, value string) string {
	if table, ok := m.Values[field]; ok {
		if v, ok := table[strings.ToLower(value)]; ok {
			return v
		}
	}
	return value
}

// resolveMapping picks the inline mapping, then the file, then the built-in
// default. A missing file at DefaultMappingPath falls back to the default.
func resolveMapping(opts ImportOptions) (*MappingConfig, error) {
	if opts.Mapping != nil {
		return opts.Mapping, opts.Mapping.Validate()
	}
	if opts.MappingPath == "" {
		return DefaultMapping(), nil
	}
	m, err := LoadMapping(opts.MappingPath)
	if errors.Is(err, fs.ErrNotExist) && opts.MappingPath == DefaultMappingPath {
		return DefaultMapping(), nil
	}
	return m, err
}
