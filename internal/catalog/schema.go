// Package catalog holds the declarative source catalog: schema field
// definitions, declared sources, and filename-to-source resolution.
//
// The catalog itself (how record_schema/grain/audit_query are authored and
// loaded) is an external collaborator per spec §1 — this package only
// defines the shape the core pipeline consumes and the resolution logic in
// registry.go, which is squarely part of the core.
package catalog

import "fmt"

// FieldType enumerates the type tags a schema field may declare, per
// spec.md §9's "dynamic schema from declaration" design note.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFloat
	FieldBool
	FieldDecimal
	FieldDate
	FieldDateTime
	FieldEmail
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	case FieldDecimal:
		return "decimal"
	case FieldDate:
		return "date"
	case FieldDateTime:
		return "datetime"
	case FieldEmail:
		return "email"
	default:
		return "unknown"
	}
}

// IsDateLike reports whether the type needs Excel-serial-date conversion.
func (t FieldType) IsDateLike() bool {
	return t == FieldDate || t == FieldDateTime
}

// SchemaField is one column of a DeclaredSource's record_schema.
type SchemaField struct {
	Name          string
	ExternalAlias string // file-side header name, if different from Name
	Type          FieldType
	MaxLength     int // 0 = unbounded; only meaningful for FieldString
	Optional      bool
}

// Alias returns the name used to look up this field in a file's header:
// the external alias if declared, else the field name.
func (f SchemaField) Alias() string {
	if f.ExternalAlias != "" {
		return f.ExternalAlias
	}
	return f.Name
}

// DeclaredSource is one catalog entry (spec.md §3).
type DeclaredSource struct {
	Name                     string // catalog key, used in logs/tests
	FilePattern              string // case-insensitive basename glob
	RecordSchema             []SchemaField
	TableName                string
	Grain                    []string
	AuditQuery               string // optional, "{table}" substituted
	ValidationErrorThreshold float64
	NotificationRecipients   []string
}

// Field looks up a schema field by name.
func (s DeclaredSource) Field(name string) (SchemaField, bool) {
	for _, f := range s.RecordSchema {
		if f.Name == name {
			return f, true
		}
	}
	return SchemaField{}, false
}

// Validate checks the DeclaredSource invariants from spec.md §3: every
// grain field must be a declared schema field, and the threshold must be
// within [0,1].
func (s DeclaredSource) Validate() error {
	if s.FilePattern == "" {
		return fmt.Errorf("source %q: file_pattern is required", s.Name)
	}
	if len(s.Grain) == 0 {
		return fmt.Errorf("source %q: grain must be non-empty", s.Name)
	}
	for _, g := range s.Grain {
		if _, ok := s.Field(g); !ok {
			return fmt.Errorf("source %q: grain field %q is not in record_schema", s.Name, g)
		}
	}
	if s.ValidationErrorThreshold < 0 || s.ValidationErrorThreshold > 1 {
		return fmt.Errorf("source %q: validation_error_threshold must be in [0,1], got %v", s.Name, s.ValidationErrorThreshold)
	}
	return nil
}
