// Package validate coerces raw records to their declared schema types and
// splits a batch into accepted and rejected streams (spec.md §4.4).
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
	"fileingest/internal/fingerprint"
	"fileingest/internal/model"
)

const sampleLimit = 5

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validator coerces and validates one DeclaredSource's records across every
// batch of a single file attempt. It is not safe for concurrent use across
// goroutines; the pipeline runner owns one per file.
type Validator struct {
	source             catalog.DeclaredSource
	startingRowNumber  int
	sourceFilename     string
	fileLoadLogID      int64
	aliasToField       map[string]catalog.SchemaField
	grainSet           map[string]bool

	totalRawSeen int
	accepted     int
	rejected     int
	samples      []model.RejectedRecord
}

// New builds a Validator for one file attempt.
func New(source catalog.DeclaredSource, startingRowNumber int, sourceFilename string, fileLoadLogID int64) *Validator {
	aliasToField := make(map[string]catalog.SchemaField, len(source.RecordSchema))
	for _, f := range source.RecordSchema {
		aliasToField[strings.ToLower(f.Alias())] = f
	}
	grainSet := make(map[string]bool, len(source.Grain))
	for _, g := range source.Grain {
		grainSet[g] = true
	}
	return &Validator{
		source:            source,
		startingRowNumber: startingRowNumber,
		sourceFilename:    sourceFilename,
		fileLoadLogID:     fileLoadLogID,
		aliasToField:      aliasToField,
		grainSet:          grainSet,
	}
}

// ValidateBatch renames, coerces, and splits one batch, preserving input
// order within the accepted/rejected streams (spec.md §4.4, §5).
func (v *Validator) ValidateBatch(batch model.Batch) model.ValidatedBatch {
	out := model.ValidatedBatch{}
	rowNum := batch.FirstRowNumber

	for _, raw := range batch.Records {
		v.totalRawSeen++
		renamed := v.rename(raw)

		fields, errs := v.coerce(renamed)
		if len(errs) == 0 {
			rowHash := fingerprint.Hash(v.source.RecordSchema, fields)
			out.Accepted = append(out.Accepted, model.AcceptedRecord{
				Fields:         fields,
				RowHash:        rowHash,
				SourceFilename: v.sourceFilename,
				FileLoadLogID:  v.fileLoadLogID,
			})
			v.accepted++
		} else {
			rejected := v.buildRejected(rowNum, renamed, fields, errs)
			out.Rejected = append(out.Rejected, rejected)
			v.rejected++
			if len(v.samples) < sampleLimit {
				v.samples = append(v.samples, rejected)
			}
		}
		rowNum++
	}
	return out
}

// rename maps a raw record's keys to schema field names via case-insensitive
// alias lookup, dropping any key with no matching schema field.
func (v *Validator) rename(raw model.RawRecord) map[string]any {
	out := make(map[string]any, len(v.aliasToField))
	for k, val := range raw {
		field, ok := v.aliasToField[strings.ToLower(strings.TrimSpace(k))]
		if !ok {
			continue
		}
		out[field.Name] = val
	}
	return out
}

// coerce type-checks and converts every schema field present in renamed.
// It returns the typed field map built so far (including any successfully
// coerced fields) together with any validation errors encountered.
func (v *Validator) coerce(renamed map[string]any) (map[string]any, []model.ValidationError) {
	fields := make(map[string]any, len(v.source.RecordSchema))
	var errs []model.ValidationError

	for _, f := range v.source.RecordSchema {
		raw, present := renamed[f.Name]
		if !present || raw == nil || raw == "" {
			if f.Optional {
				fields[f.Name] = nil
				continue
			}
			errs = append(errs, model.ValidationError{
				ColumnName: f.Alias(),
				ColumnValue: "",
				ErrorType:  "MissingRequiredField",
				ErrorMsg:   fmt.Sprintf("field %q is required", f.Name),
			})
			continue
		}

		val, err := coerceValue(f, raw)
		if err != nil {
			errs = append(errs, model.ValidationError{
				ColumnName:  f.Alias(),
				ColumnValue: fmt.Sprintf("%v", raw),
				ErrorType:   "TypeCoercion",
				ErrorMsg:    err.Error(),
			})
			continue
		}
		fields[f.Name] = val
	}
	return fields, errs
}

func coerceValue(f catalog.SchemaField, raw any) (any, error) {
	switch f.Type {
	case catalog.FieldString:
		s := toString(raw)
		if f.MaxLength > 0 && len(s) > f.MaxLength {
			return nil, fmt.Errorf("value exceeds max length %d", f.MaxLength)
		}
		return s, nil
	case catalog.FieldEmail:
		s := strings.TrimSpace(toString(raw))
		if !emailPattern.MatchString(s) {
			return nil, fmt.Errorf("value is not a valid email address")
		}
		return s, nil
	case catalog.FieldInt:
		switch t := raw.(type) {
		case int:
			return int64(t), nil
		case int64:
			return t, nil
		case float64:
			return int64(t), nil
		default:
			s := strings.TrimSpace(toString(raw))
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as int", s)
			}
			return n, nil
		}
	case catalog.FieldFloat:
		switch t := raw.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		default:
			s := strings.TrimSpace(toString(raw))
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as float", s)
			}
			return n, nil
		}
	case catalog.FieldDecimal:
		s := strings.TrimSpace(toString(raw))
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as decimal", s)
		}
		return d, nil
	case catalog.FieldBool:
		switch t := raw.(type) {
		case bool:
			return t, nil
		default:
			s := strings.ToLower(strings.TrimSpace(toString(raw)))
			switch s {
			case "true", "1", "yes", "y", "t":
				return true, nil
			case "false", "0", "no", "n", "f":
				return false, nil
			default:
				return nil, fmt.Errorf("cannot parse %q as bool", s)
			}
		}
	case catalog.FieldDate:
		return coerceTime(raw, "2006-01-02")
	case catalog.FieldDateTime:
		return coerceTime(raw, time.RFC3339)
	default:
		return nil, fmt.Errorf("unsupported field type %v", f.Type)
	}
}

func coerceTime(raw any, layout string) (any, error) {
	if t, ok := raw.(time.Time); ok {
		return t, nil
	}
	s := strings.TrimSpace(toString(raw))
	if t, err := time.Parse(layout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return nil, fmt.Errorf("cannot parse %q as %s", s, layout)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// buildRejected constructs the DLQ record: the union of failing field names
// and grain fields, translated back to external aliases (spec.md §3, §4.4).
func (v *Validator) buildRejected(fileRowNumber int, renamed map[string]any, fields map[string]any, errs []model.ValidationError) model.RejectedRecord {
	failing := make(map[string]bool, len(errs))
	for _, e := range errs {
		failing[e.ColumnName] = true
	}

	data := make(map[string]any)
	for _, f := range v.source.RecordSchema {
		if !failing[f.Alias()] && !v.grainSet[f.Name] {
			continue
		}
		if val, ok := fields[f.Name]; ok {
			data[f.Alias()] = val
		} else if val, ok := renamed[f.Name]; ok {
			data[f.Alias()] = val
		}
	}

	return model.RejectedRecord{
		FileRowNumber:  fileRowNumber,
		RecordData:     data,
		Errors:         errs,
		SourceFilename: v.sourceFilename,
		FileLoadLogID:  v.fileLoadLogID,
	}
}

// Finish checks the accumulated error rate against the source's configured
// threshold (spec.md §4.4), strict greater-than.
func (v *Validator) Finish() error {
	validated := v.accepted + v.rejected
	if validated == 0 {
		return nil
	}
	rate := float64(v.rejected) / float64(validated)
	if rate <= v.source.ValidationErrorThreshold {
		return nil
	}

	return pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindValidationThresholdExceed, "validation error rate exceeds configured threshold").
		WithDetail("accepted", v.accepted).
		WithDetail("rejected", v.rejected).
		WithDetail("threshold", v.source.ValidationErrorThreshold).
		WithDetail("rate", rate).
		WithDetail("samples", v.samples)
}

// Counts returns the running accepted/rejected totals, used by the Runner
// to populate FileLoadLog's validation_errors and records_read counters.
func (v *Validator) Counts() (accepted, rejected int) {
	return v.accepted, v.rejected
}
