package reader

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
	"fileingest/internal/model"
)

// excelSerialEpoch is the Excel 1900 date system's day zero. Excel's
// well-known leap-year bug (treating 1900 as a leap year) is not
// compensated for here: values are taken at face value the way
// excelize/Excel itself round-trips them.
var excelSerialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

func excelSerialToTime(serial float64) time.Time {
	days := int(serial)
	frac := serial - float64(days)
	return excelSerialEpoch.AddDate(0, 0, days).Add(time.Duration(frac * float64(24*time.Hour)))
}

// excelReader reads one worksheet of an .xlsx/.xls workbook via excelize's
// row iterator, so memory use stays proportional to one row, not the sheet.
type excelReader struct {
	closer  io.Closer
	f       *excelize.File
	rows    *excelize.Rows
	header  []string
	dateCol map[int]bool
	opts    Options

	startingRow int
	rowsRead    int
	nextRowNum  int
	exhausted   bool
}

func newExcelReader(schema []catalog.SchemaField, src io.Reader, closer io.Closer, opts Options) (Reader, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		closer.Close()
		return nil, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "failed to open Excel workbook")
	}

	sheet := opts.SheetName
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			f.Close()
			closer.Close()
			return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, "workbook has no sheets")
		}
		sheet = list[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		closer.Close()
		return nil, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "failed to open sheet")
	}

	r := &excelReader{closer: closer, f: f, rows: rows, opts: opts}

	for i := 0; i < opts.SkipRows; i++ {
		if !rows.Next() {
			r.Close()
			return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindMissingHeader, "file ended before header row")
		}
	}

	if !rows.Next() {
		r.Close()
		return nil, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindMissingHeader, "file has no header row")
	}
	header, err := rows.Columns()
	if err != nil {
		r.Close()
		return nil, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindMissingHeader, err, "failed to read header row")
	}
	if err := checkHeader(schema, header); err != nil {
		r.Close()
		return nil, err
	}

	r.header = header
	r.dateCol = dateColumns(schema, header)
	r.startingRow = opts.SkipRows + 2
	r.nextRowNum = r.startingRow
	return r, nil
}

// dateColumns maps header index -> true for columns whose schema field is
// date-like, so Next knows which cells need serial-to-time conversion.
func dateColumns(schema []catalog.SchemaField, header []string) map[int]bool {
	byAlias := make(map[string]catalog.SchemaField, len(schema))
	for _, f := range schema {
		byAlias[strings.ToLower(f.Alias())] = f
	}
	cols := make(map[int]bool)
	for i, h := range header {
		if f, ok := byAlias[strings.ToLower(strings.TrimSpace(h))]; ok && f.Type.IsDateLike() {
			cols[i] = true
		}
	}
	return cols
}

func (r *excelReader) Next(ctx context.Context) (model.Batch, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Batch{}, false, err
	}
	if r.exhausted {
		return model.Batch{}, false, nil
	}

	batch := model.Batch{FirstRowNumber: r.nextRowNum}
	size := r.opts.batchSize()

	for len(batch.Records) < size {
		if !r.rows.Next() {
			r.exhausted = true
			break
		}
		cells, err := r.rows.Columns()
		if err != nil {
			return model.Batch{}, false, pipeerr.Wrap(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, err, "failed to read row")
		}
		rec := make(model.RawRecord, len(r.header))
		for i, h := range r.header {
			if i >= len(cells) {
				rec[h] = ""
				continue
			}
			rec[h] = r.cellValue(i, cells[i])
		}
		batch.Records = append(batch.Records, rec)
		r.rowsRead++
		r.nextRowNum++
	}

	if len(batch.Records) == 0 {
		if r.rowsRead == 0 {
			return model.Batch{}, false, pipeerr.New(pipeerr.FamilyNotifiable, pipeerr.KindNoDataInFile, "file has a header but no data rows")
		}
		return model.Batch{}, false, nil
	}
	return batch, true, nil
}

func (r *excelReader) cellValue(col int, raw string) any {
	if r.dateCol[col] {
		if serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return excelSerialToTime(serial)
		}
	}
	return raw
}

func (r *excelReader) StartingRowNumber() int { return r.startingRow }
func (r *excelReader) RowsRead() int          { return r.rowsRead }

func (r *excelReader) Close() error {
	fErr := r.f.Close()
	cErr := r.closer.Close()
	if fErr != nil {
		return fErr
	}
	return cErr
}
