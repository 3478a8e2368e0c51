package excel

import (
	"fmt"
	"strconv"
	"strings"

	"driving-school-admin/internal/datefmt"
	"driving-school-admin/internal/model"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Excel serials beyond 9999-12-31 are not dates.
const maxExcelSerial = 2958465

// RowIterator yields the data rows of one worksheet in document order. It
// reads the sheet once and cannot be restarted.
type RowIterator struct {
	category model.Category
	sheet    string
	rows     *excelize.Rows
	date1904 bool
	log      zerolog.Logger

	columns map[column]int
	rowNum  int
	current model.Row
	err     error
	done    bool
}

func (it *RowIterator) Category() model.Category {
	return it.category
}

func (it *RowIterator) Sheet() string {
	return it.sheet
}

// Next advances to the next row that carries a student identifier.
func (it *RowIterator) Next() bool {
	if it.done {
		return false
	}

	for it.rows.Next() {
		it.rowNum++

		cells, err := it.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			it.fail(fmt.Errorf("failed to read row %d of %q: %w", it.rowNum, it.sheet, err))
			return false
		}

		if it.columns == nil {
			it.detectHeader(cells)
			if it.done {
				return false
			}
			continue
		}

		row, ok := it.parseRow(cells)
		if !ok {
			continue
		}
		it.current = row
		return true
	}

	if err := it.rows.Error(); err != nil {
		it.fail(fmt.Errorf("failed to iterate %q: %w", it.sheet, err))
		return false
	}

	if it.columns == nil {
		it.log.Debug().Msg("No header row found, worksheet skipped")
	}
	it.finish()
	return false
}

func (it *RowIterator) Row() model.Row {
	return it.current
}

func (it *RowIterator) Err() error {
	return it.err
}

func (it *RowIterator) Close() error {
	if it.rows == nil {
		return nil
	}
	it.done = true
	return it.rows.Close()
}

func (it *RowIterator) fail(err error) {
	it.err = err
	it.finish()
}

func (it *RowIterator) finish() {
	it.done = true
	if it.rows != nil {
		_ = it.rows.Close()
		it.rows = nil
	}
}

// detectHeader records the column layout when cells form the header row. A
// header missing the category's required columns ends the iteration.
func (it *RowIterator) detectHeader(cells []string) {
	index := make(map[column]int)
	for i, cell := range cells {
		c, ok := columnForLabel(cell)
		if !ok {
			continue
		}
		if _, seen := index[c]; !seen {
			index[c] = i
		}
	}

	if _, ok := index[colIdentifier]; !ok {
		return
	}

	for _, required := range requiredColumns[it.category] {
		if _, ok := index[required]; !ok {
			it.log.Debug().
				Int("header_row", it.rowNum).
				Stringer("missing_column", required).
				Msg("Header lacks a required column, worksheet skipped")
			it.finish()
			return
		}
	}

	it.columns = index
	it.log.Debug().Int("header_row", it.rowNum).Msg("Header row located")
}

func (it *RowIterator) parseRow(cells []string) (model.Row, bool) {
	get := func(c column) string {
		if idx, ok := it.columns[c]; ok && idx < len(cells) {
			return strings.TrimSpace(cells[idx])
		}
		return ""
	}

	identifier := get(colIdentifier)
	if identifier == "" {
		return model.Row{}, false
	}

	row := model.Row{
		Sheet:      it.sheet,
		Number:     it.rowNum,
		Identifier: identifier,
		BirthDate:  it.dateCell(get(colBirthDate)),
	}

	if it.category == model.CategoryCaseFiled {
		return row, true
	}

	row.Subject = get(colSubject)
	row.EventDate = datefmt.EventTimestamp(it.dateCell(get(colEventDate)))
	row.Result = model.ParseResult(get(colResult))
	row.Location = get(colLocation)

	return row, true
}

// dateCell turns a raw cell into a date value. Numbers in date columns are
// Excel serials.
func (it *RowIterator) dateCell(raw string) datefmt.Value {
	if raw == "" {
		return datefmt.Value{}
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil || serial <= 0 || serial > maxExcelSerial {
		return datefmt.FromText(raw)
	}
	t, err := excelize.ExcelDateToTime(serial, it.date1904)
	if err != nil {
		return datefmt.FromText(raw)
	}
	return datefmt.FromTime(t)
}
