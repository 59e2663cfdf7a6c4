package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// catalogFile is the thin on-disk shape LoadFile understands. The full
// declarative-catalog file format (versioning, includes, schema migrations)
// is out of scope; this is just enough JSON to populate a Registry without
// recompiling the binary per source.
type catalogFile struct {
	Sources []catalogEntry `json:"sources"`
}

type catalogEntry struct {
	Name                     string             `json:"name"`
	FilePattern              string             `json:"file_pattern"`
	ReaderKind               string             `json:"reader_kind"`
	TableName                string             `json:"table_name"`
	Grain                    []string           `json:"grain"`
	AuditQuery               string             `json:"audit_query,omitempty"`
	ValidationErrorThreshold float64            `json:"validation_error_threshold"`
	NotificationRecipients   []string           `json:"notification_recipients,omitempty"`
	RecordSchema             []catalogFieldJSON `json:"record_schema"`
}

type catalogFieldJSON struct {
	Name          string `json:"name"`
	ExternalAlias string `json:"external_alias,omitempty"`
	Type          string `json:"type"`
	MaxLength     int    `json:"max_length,omitempty"`
	Optional      bool   `json:"optional,omitempty"`
}

var fieldTypeNames = map[string]FieldType{
	"string":   FieldString,
	"int":      FieldInt,
	"float":    FieldFloat,
	"bool":     FieldBool,
	"decimal":  FieldDecimal,
	"date":     FieldDate,
	"datetime": FieldDateTime,
	"email":    FieldEmail,
}

var readerKindNames = map[string]ReaderKind{
	"csv":     ReaderCSV,
	"excel":   ReaderExcel,
	"json":    ReaderJSON,
	"parquet": ReaderParquet,
}

// LoadFile reads a JSON catalog file and builds a Registry from it.
func LoadFile(path string) (*Registry, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var cf catalogFile
	if err := json.Unmarshal(body, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(cf.Sources))
	for _, e := range cf.Sources {
		kind, ok := readerKindNames[e.ReaderKind]
		if !ok {
			return nil, fmt.Errorf("source %q: unknown reader_kind %q", e.Name, e.ReaderKind)
		}
		schema := make([]SchemaField, len(e.RecordSchema))
		for i, f := range e.RecordSchema {
			ft, ok := fieldTypeNames[f.Type]
			if !ok {
				return nil, fmt.Errorf("source %q field %q: unknown type %q", e.Name, f.Name, f.Type)
			}
			schema[i] = SchemaField{
				Name:          f.Name,
				ExternalAlias: f.ExternalAlias,
				Type:          ft,
				MaxLength:     f.MaxLength,
				Optional:      f.Optional,
			}
		}
		source := DeclaredSource{
			Name:                     e.Name,
			FilePattern:              e.FilePattern,
			RecordSchema:             schema,
			TableName:                e.TableName,
			Grain:                    e.Grain,
			AuditQuery:               e.AuditQuery,
			ValidationErrorThreshold: e.ValidationErrorThreshold,
			NotificationRecipients:   e.NotificationRecipients,
		}
		entries = append(entries, Entry{Source: source, Kind: kind})
	}

	return Register(entries)
}
