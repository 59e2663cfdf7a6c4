package reader

import (
	"context"
	"encoding/csv"
	"io"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
	"fileingest/internal/model"
)

// csvReader reads CSV and TSV files. Header validation happens eagerly in
// newCSVReader so MissingHeader and MissingColumns surface before the first
// batch is requested.
type csvReader struct {
	closer io.Closer
	csvr   *csv.Reader
	header []string
	opts   Options

	startingRow int
	rowsRead    int
	nextRowNum  int
}

func newCSVReader(schema []catalog.SchemaField, src io.Reader, closer io.Closer, opts Options) (Reader, error) {
	r := &csvReader{closer: closer, opts: opts}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	r.csvr = cr

	header, err := cr.Read()
	if err == io.EOF {
		closer.Close()
		return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindMissingHeader, "file has no header row")
	}
	if err != nil {
		closer.Close()
		return nil, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindMissingHeader, err, "failed to read header row")
	}
	if err := checkHeader(schema, header); err != nil {
		closer.Close()
		return nil, err
	}

	for i := 0; i < opts.SkipRows; i++ {
		if _, err := cr.Read(); err != nil {
			closer.Close()
			return nil, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "file ended before skip_rows data rows were read")
		}
	}

	r.header = header
	r.startingRow = opts.SkipRows + 2 // 1-based: header, then skip_rows data rows, then first kept row
	r.nextRowNum = r.startingRow
	return r, nil
}

func (r *csvReader) Next(ctx context.Context) (model.Batch, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Batch{}, false, err
	}

	batch := model.Batch{FirstRowNumber: r.nextRowNum}
	size := r.opts.batchSize()

	for len(batch.Records) < size {
		fields, err := r.csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.Batch{}, false, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "failed to read CSV row")
		}
		rec := make(model.RawRecord, len(r.header))
		for i, h := range r.header {
			if i < len(fields) {
				rec[h] = fields[i]
			} else {
				rec[h] = ""
			}
		}
		batch.Records = append(batch.Records, rec)
		r.rowsRead++
		r.nextRowNum++
	}

	if len(batch.Records) == 0 {
		return model.Batch{}, false, nil
	}
	return batch, true, nil
}

func (r *csvReader) StartingRowNumber() int { return r.startingRow }
func (r *csvReader) RowsRead() int          { return r.rowsRead }
func (r *csvReader) Close() error           { return r.closer.Close() }
