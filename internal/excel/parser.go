package excel

import (
	"fmt"
	"io"

	"driving-school-admin/internal/logger"
	"driving-school-admin/internal/model"
	"driving-school-admin/pkg/errors"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Workbook is an opened exam-authority export with its worksheets mapped to
// categories.
type Workbook struct {
	file     *excelize.File
	sheets   map[model.Category]string
	date1904 bool
	log      zerolog.Logger
}

// Open reads a workbook. A file that cannot be parsed at all is reported as
// ErrInvalidWorkbook.
func Open(r io.Reader) (*Workbook, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidWorkbook, err)
	}

	w := &Workbook{
		file:   file,
		sheets: make(map[model.Category]string),
		log:    logger.Component("excel"),
	}

	if props, err := file.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		w.date1904 = *props.Date1904
	}

	for _, name := range file.GetSheetList() {
		category, ok := CategoryForSheet(name)
		if !ok {
			w.log.Debug().Str("sheet", name).Msg("Ignoring unrecognized worksheet")
			continue
		}
		if existing, taken := w.sheets[category]; taken {
			w.log.Debug().
				Str("sheet", name).
				Str("category", string(category)).
				Str("using", existing).
				Msg("Category already mapped to an earlier worksheet")
			continue
		}
		w.sheets[category] = name
	}

	return w, nil
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

// Sheet returns the worksheet title recognized for a category. A missing
// category is not an error.
func (w *Workbook) Sheet(c model.Category) (string, bool) {
	name, ok := w.sheets[c]
	return name, ok
}

// Rows starts a lazy pass over a category's worksheet. When the category has
// no worksheet, or the worksheet has no usable header, the iterator is empty.
func (w *Workbook) Rows(c model.Category) (*RowIterator, error) {
	it := &RowIterator{category: c, date1904: w.date1904, log: w.log}

	name, ok := w.sheets[c]
	if !ok {
		it.done = true
		return it, nil
	}
	it.sheet = name
	it.log = w.log.With().Str("sheet", name).Str("category", string(c)).Logger()

	rows, err := w.file.Rows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", name, err)
	}
	it.rows = rows

	return it, nil
}
