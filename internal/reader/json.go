package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
	"fileingest/internal/model"
)

// jsonReader reads a JSON document whose body is (or contains, at
// opts.JSONPath) an array of objects. Nested objects and arrays are
// flattened to "_"-joined keys, array segments using their numeric index,
// per spec.md §4.3. The whole array is decoded up front — JSON, unlike
// CSV/Parquet, has no record-boundary framing cheap enough to stream
// without first locating the array via JSONPath.
type jsonReader struct {
	closer  io.Closer
	records []model.RawRecord

	startingRow int
	rowsRead    int
	nextIdx     int
	nextRowNum  int
	opts        Options
}

func newJSONReader(schema []catalog.SchemaField, src io.Reader, closer io.Closer, opts Options) (Reader, error) {
	var doc any
	dec := json.NewDecoder(src)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		closer.Close()
		if err == io.EOF {
			return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, "file is empty")
		}
		return nil, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "failed to parse JSON document")
	}

	arrNode, err := navigateJSONPath(doc, opts.JSONPath)
	if err != nil {
		closer.Close()
		return nil, err
	}
	arr, ok := arrNode.([]any)
	if !ok {
		closer.Close()
		return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, "JSON path does not resolve to an array of records")
	}
	if len(arr) == 0 {
		closer.Close()
		return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, "file has no data records")
	}

	flat := make([]model.RawRecord, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			closer.Close()
			return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, "JSON array element is not an object")
		}
		flat = append(flat, flattenObject(obj))
	}

	header := unionKeys(flat)
	if err := checkHeader(schema, header); err != nil {
		closer.Close()
		return nil, err
	}

	return &jsonReader{
		closer:      closer,
		records:     flat,
		startingRow: 1,
		nextRowNum:  1,
		opts:        opts,
	}, nil
}

func navigateJSONPath(doc any, path string) (any, error) {
	if path == "" {
		return doc, nil
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, fmt.Sprintf("JSON path segment %q is not an object", seg))
		}
		next, ok := obj[seg]
		if !ok {
			return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, fmt.Sprintf("JSON path segment %q not found", seg))
		}
		cur = next
	}
	return cur, nil
}

// flattenObject joins nested keys with "_" and array elements by their
// numeric index segment, e.g. {"a":{"b":1},"c":[10,20]} -> a_b=1, c_0=10,
// c_1=20.
func flattenObject(obj map[string]any) model.RawRecord {
	out := make(model.RawRecord)
	flattenInto(out, "", obj)
	return out
}

func flattenInto(out model.RawRecord, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			flattenInto(out, joinKey(prefix, k), vv)
		}
	case []any:
		for i, vv := range t {
			flattenInto(out, joinKey(prefix, strconv.Itoa(i)), vv)
		}
	default:
		out[prefix] = v
	}
}

func joinKey(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "_" + seg
}

func unionKeys(records []model.RawRecord) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func (r *jsonReader) Next(ctx context.Context) (model.Batch, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Batch{}, false, err
	}
	if r.nextIdx >= len(r.records) {
		return model.Batch{}, false, nil
	}

	size := r.opts.batchSize()
	end := r.nextIdx + size
	if end > len(r.records) {
		end = len(r.records)
	}

	batch := model.Batch{
		Records:        r.records[r.nextIdx:end],
		FirstRowNumber: r.nextRowNum,
	}
	count := end - r.nextIdx
	r.rowsRead += count
	r.nextRowNum += count
	r.nextIdx = end
	return batch, true, nil
}

func (r *jsonReader) StartingRowNumber() int { return r.startingRow }
func (r *jsonReader) RowsRead() int          { return r.rowsRead }
func (r *jsonReader) Close() error           { return r.closer.Close() }
