package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed formats.yaml
var defaultFormats []byte

// Formats holds the per-instrument column tables and instrument parameters.
type Formats struct {
	Formats map[string]FormatConfig `yaml:"formats"`
}

// FormatConfig describes one instrument family.
type FormatConfig struct {
	Parameters map[string]string       `yaml:"parameters"`
	Products   map[string]ProductTable `yaml:"products"`
}

// ProductTable maps one product of a family onto canonical variables.
type ProductTable struct {
	Time      TimeColumn     `yaml:"time"`
	Variables []VariableRule `yaml:"variables"`
}

// TimeColumn locates and decodes the timestamp field. Layouts use Go reference time syntax.
type TimeColumn struct {
	Column  string   `yaml:"column"`
	Layouts []string `yaml:"layouts"`
	// Epoch is an RFC 3339 date for numeric second counts.
	Epoch string `yaml:"epoch"`
}

// VariableRule is the YAML form of domain.ColumnRule.
type VariableRule struct {
	Name     string   `yaml:"name"`
	Dims     []string `yaml:"dims"`
	Type     string   `yaml:"type"`
	Column   string   `yaml:"column"`
	Contains string   `yaml:"contains"`
	Excludes []string `yaml:"excludes"`
	Extra    []string `yaml:"extra"`
	Required bool     `yaml:"required"`
	Units    string   `yaml:"units"`
	LongName string   `yaml:"long_name"`
	Comment  string   `yaml:"comment"`
}

// LoadFormats reads format tables from path, or the built-in tables when path is empty.
func LoadFormats(path string) (*Formats, error) {
	data := defaultFormats
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read formats file: %w", err)
		}
		data = b
	}
	return ParseFormats(data)
}

// ParseFormats decodes and validates YAML format tables.
func ParseFormats(data []byte) (*Formats, error) {
	var f Formats
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode formats: %w", err)
	}
	if len(f.Formats) == 0 {
		return nil, fmt.Errorf("decode formats: no formats defined")
	}
	for name := range f.Formats {
		for product := range f.Formats[name].Products {
			if _, err := f.Table(name, product); err != nil {
				return nil, err
			}
		}
	}
	return &f, nil
}

// Names lists the configured families in sorted order.
func (f *Formats) Names() []string {
	names := make([]string, 0, len(f.Formats))
	for n := range f.Formats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Products lists the products of a family in sorted order.
func (f *Formats) Products(format string) []string {
	fc := f.Formats[format]
	out := make([]string, 0, len(fc.Products))
	for p := range fc.Products {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Parameters returns the instrument parameters configured for a family.
func (f *Formats) Parameters(format string) map[string]string {
	return f.Formats[format].Parameters
}

// Table converts the configured product table into its domain form.
func (f *Formats) Table(format, product string) (domain.Table, error) {
	fc, ok := f.Formats[format]
	if !ok {
		return domain.Table{}, fmt.Errorf("format %q not configured", format)
	}
	pt, ok := fc.Products[product]
	if !ok {
		return domain.Table{}, fmt.Errorf("format %q has no product %q", format, product)
	}

	table := domain.Table{
		Time: domain.TimeSpec{Column: pt.Time.Column, Layouts: pt.Time.Layouts},
	}
	if pt.Time.Epoch != "" {
		epoch, err := time.Parse(time.RFC3339, pt.Time.Epoch)
		if err != nil {
			return domain.Table{}, fmt.Errorf("%s/%s: invalid time epoch: %w", format, product, err)
		}
		epoch = epoch.UTC()
		table.Time.Epoch = &epoch
	}
	if table.Time.Column == "" || (table.Time.Epoch == nil && len(table.Time.Layouts) == 0) {
		return domain.Table{}, fmt.Errorf("%s/%s: time column and layouts or epoch are required", format, product)
	}

	for i, v := range pt.Variables {
		rule, err := v.rule()
		if err != nil {
			return domain.Table{}, fmt.Errorf("%s/%s: variable %d: %w", format, product, i, err)
		}
		table.Rules = append(table.Rules, rule)
	}
	return table, nil
}

func (v VariableRule) rule() (domain.ColumnRule, error) {
	if v.Name == "" {
		return domain.ColumnRule{}, fmt.Errorf("name is required")
	}
	if (v.Column == "") == (v.Contains == "") {
		return domain.ColumnRule{}, fmt.Errorf("%s: exactly one of column or contains must be set", v.Name)
	}
	typ, err := parseDataType(v.Type)
	if err != nil {
		return domain.ColumnRule{}, fmt.Errorf("%s: %w", v.Name, err)
	}
	dims := v.Dims
	if len(dims) == 0 {
		dims = []string{domain.DimTime}
	}
	if dims[0] != domain.DimTime {
		return domain.ColumnRule{}, fmt.Errorf("%s: mapped variables must be indexed by time", v.Name)
	}

	var attrs []domain.Attribute
	for _, a := range [][2]string{{"units", v.Units}, {"long_name", v.LongName}, {"comment", v.Comment}} {
		if a[1] != "" {
			attrs = append(attrs, domain.Attribute{Key: a[0], Value: a[1]})
		}
	}
	return domain.ColumnRule{
		Name:     v.Name,
		Dims:     dims,
		Type:     typ,
		Column:   v.Column,
		Contains: v.Contains,
		Excludes: v.Excludes,
		Extra:    v.Extra,
		Required: v.Required,
		Attrs:    attrs,
	}, nil
}

func parseDataType(s string) (domain.DataType, error) {
	switch strings.ToLower(s) {
	case "", "float32", "f4":
		return domain.Float32, nil
	case "int32", "i":
		return domain.Int32, nil
	case "string", "str":
		return domain.String, nil
	}
	return 0, fmt.Errorf("unknown type %q", s)
}
