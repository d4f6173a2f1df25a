package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColumnRule selects the source columns of one canonical variable.
// Exactly one of Column (exact label) or Contains (label substring) is set.
type ColumnRule struct {
	Name     string
	Dims     []string
	Type     DataType
	Column   string
	Contains string
	// Excludes lists substrings that disqualify a label matched by Contains.
	Excludes []string
	// Extra lists exact labels appended after the matched columns. A label
	// missing from the source contributes a NaN column.
	Extra    []string
	Required bool
	Attrs    []Attribute
}

// Table is the declarative mapping of one instrument product onto the canonical schema.
type Table struct {
	Time  TimeSpec
	Rules []ColumnRule
}

// Plan is a Table resolved against a concrete column layout.
type Plan struct {
	rules        []plannedRule
	decimalComma bool
}

type plannedRule struct {
	rule    ColumnRule
	columns []int // -1 marks a NaN fill column
}

// ColumnIndex returns the position of the first label equal to name, or -1.
func ColumnIndex(labels []string, name string) int {
	for i, l := range labels {
		if l == name {
			return i
		}
	}
	return -1
}

// CompilePlan resolves every rule of table against labels. Substring matches
// keep the source column order. A rule whose substring is contained in another
// rule's substring never matches that more specific rule's columns.
func CompilePlan(table Table, labels []string, nRange int, decimalComma bool) (*Plan, error) {
	plan := &Plan{decimalComma: decimalComma}
	for i, rule := range table.Rules {
		excludes := append([]string(nil), rule.Excludes...)
		if rule.Contains != "" {
			for j, other := range table.Rules {
				if j != i && other.Contains != rule.Contains && strings.Contains(other.Contains, rule.Contains) {
					excludes = append(excludes, other.Contains)
				}
			}
		}

		var cols []int
		for c, label := range labels {
			if rule.matches(label, excludes) {
				cols = append(cols, c)
			}
		}
		if len(cols) == 0 {
			if rule.Required {
				return nil, &SchemaMappingError{Variable: rule.Name, Reason: "no matching source column"}
			}
			continue
		}

		if isGrid(rule.Dims) {
			for _, label := range rule.Extra {
				cols = append(cols, ColumnIndex(labels, label))
			}
			if len(cols) != nRange {
				return nil, &SchemaMappingError{
					Variable: rule.Name,
					Reason:   fmt.Sprintf("%d columns selected for %d range gates", len(cols), nRange),
				}
			}
		} else {
			cols = cols[:1]
		}
		plan.rules = append(plan.rules, plannedRule{rule: rule, columns: cols})
	}
	return plan, nil
}

func (r ColumnRule) matches(label string, excludes []string) bool {
	if r.Column != "" {
		return label == r.Column
	}
	if r.Contains == "" || !strings.Contains(label, r.Contains) {
		return false
	}
	for _, ex := range excludes {
		if strings.Contains(label, ex) {
			return false
		}
	}
	return true
}

func isGrid(dims []string) bool {
	return len(dims) == 2 && dims[0] == DimTime && dims[1] == DimRange
}

// Variables returns the declarations of every mapped variable in table order.
func (p *Plan) Variables() []Variable {
	vars := make([]Variable, len(p.rules))
	for i, pr := range p.rules {
		vars[i] = Variable{Name: pr.rule.Name, Type: pr.rule.Type, Dims: pr.rule.Dims, Attrs: pr.rule.Attrs}
	}
	return vars
}

// Apply extracts the values of every mapped variable from records.
func (p *Plan) Apply(records []RawRecord) map[string]Values {
	out := make(map[string]Values, len(p.rules))
	for _, pr := range p.rules {
		n := len(records) * len(pr.columns)
		if pr.rule.Type == String {
			texts := make([]string, 0, n)
			for _, rec := range records {
				for _, c := range pr.columns {
					texts = append(texts, field(rec, c))
				}
			}
			out[pr.rule.Name] = Values{Texts: texts}
			continue
		}
		floats := make([]float64, 0, n)
		for _, rec := range records {
			for _, c := range pr.columns {
				floats = append(floats, ParseNumber(field(rec, c), p.decimalComma))
			}
		}
		out[pr.rule.Name] = Values{Floats: floats}
	}
	return out
}

// MapInto compiles table against labels and adds the mapped variables to b.
// len(records) must equal b.Len().
func MapInto(b *Batch, table Table, labels []string, records []RawRecord, decimalComma bool) error {
	if len(records) != b.Len() {
		return fmt.Errorf("map records: %d records for %d time steps", len(records), b.Len())
	}
	plan, err := CompilePlan(table, labels, len(b.Range), decimalComma)
	if err != nil {
		return err
	}
	data := plan.Apply(records)
	for _, v := range plan.Variables() {
		b.Add(v, data[v.Name])
	}
	return nil
}

// ParseNumber parses a vendor numeric field, returning NaN when it is not a number.
func ParseNumber(s string, decimalComma bool) float64 {
	s = strings.TrimSpace(s)
	if decimalComma {
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func field(rec RawRecord, c int) string {
	if c < 0 || c >= len(rec) {
		return ""
	}
	return rec[c]
}
