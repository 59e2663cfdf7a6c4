package reader

import (
	"bytes"
	"context"
	"io"

	"github.com/parquet-go/parquet-go"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
	"fileingest/internal/model"
)

// parquetReader reads a columnar file via parquet-go's generic row
// decoding into map[string]any. parquet-go requires an io.ReaderAt, so the
// body is buffered in full before parsing; this is acceptable because
// Parquet's own row-group/page framing already gives good memory locality
// on the write side; streaming reads happen row by row from there.
//
// Only flat (non-nested) record schemas are supported: every declared
// source consumed here is a tabular column set, so nested-group flattening
// is not implemented.
type parquetReader struct {
	closer io.Closer
	file   *parquet.File
	pr     *parquet.Reader
	opts   Options

	startingRow int
	rowsRead    int
	nextRowNum  int
	done        bool
}

func newParquetReader(schema []catalog.SchemaField, src io.Reader, closer io.Closer, opts Options) (Reader, error) {
	buf, err := io.ReadAll(src)
	if err != nil {
		closer.Close()
		return nil, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "failed to buffer parquet file")
	}
	if len(buf) == 0 {
		closer.Close()
		return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, "file is empty")
	}

	pf, err := parquet.OpenFile(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		closer.Close()
		return nil, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "failed to open parquet file")
	}

	columns := make([]string, 0, len(pf.Schema().Fields()))
	for _, f := range pf.Schema().Fields() {
		columns = append(columns, f.Name())
	}
	if err := checkHeader(schema, columns); err != nil {
		closer.Close()
		return nil, err
	}
	if pf.NumRows() == 0 {
		closer.Close()
		return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, "file has no data rows")
	}

	pr := parquet.NewReader(pf, pf.Schema())

	return &parquetReader{
		closer:      closer,
		file:        pf,
		pr:          pr,
		opts:        opts,
		startingRow: 1,
		nextRowNum:  1,
	}, nil
}

func (r *parquetReader) Next(ctx context.Context) (model.Batch, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Batch{}, false, err
	}
	if r.done {
		return model.Batch{}, false, nil
	}

	batch := model.Batch{FirstRowNumber: r.nextRowNum}
	size := r.opts.batchSize()

	for len(batch.Records) < size {
		row := make(map[string]any)
		if err := r.pr.Read(&row); err != nil {
			if err == io.EOF {
				r.done = true
				break
			}
			return model.Batch{}, false, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "failed to read parquet row")
		}
		rec := make(model.RawRecord, len(row))
		for k, v := range row {
			rec[k] = v
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

func (r *parquetReader) StartingRowNumber() int { return r.startingRow }
func (r *parquetReader) RowsRead() int          { return r.rowsRead }

func (r *parquetReader) Close() error {
	return r.closer.Close()
}
