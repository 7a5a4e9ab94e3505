package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
)

// Input column names. IdentifierAliasColumn lets the failure ledger be fed back as input.
const (
	IdentifierColumn      = "Child External ID"
	IdentifierAliasColumn = "Identifier__c"
	ImageURLColumn        = "Child Photo URL"
)

// ErrMissingColumn is returned by NewRowReader when a required header is absent.
var ErrMissingColumn = errors.New("input is missing a required column")

// RowReader yields input rows from a header-bearing CSV stream.
type RowReader struct {
	r        *csv.Reader
	idCol    int
	urlCol   int
	line     int
	finished bool
}

// NewRowReader reads the header row and locates the identifier and image URL columns.
func NewRowReader(r io.Reader) (*RowReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %q (empty input)", ErrMissingColumn, IdentifierColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idCol, aliasCol, urlCol := -1, -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case IdentifierColumn:
			if idCol < 0 {
				idCol = i
			}
		case IdentifierAliasColumn:
			if aliasCol < 0 {
				aliasCol = i
			}
		case ImageURLColumn:
			if urlCol < 0 {
				urlCol = i
			}
		}
	}
	if idCol < 0 {
		idCol = aliasCol
	}
	if idCol < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, IdentifierColumn)
	}
	if urlCol < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, ImageURLColumn)
	}
	return &RowReader{r: cr, idCol: idCol, urlCol: urlCol}, nil
}

// Next returns the next data row, or io.EOF when the stream is exhausted.
// Short records yield empty values for the missing fields.
func (rr *RowReader) Next() (domain.Row, error) {
	if rr.finished {
		return domain.Row{}, io.EOF
	}
	record, err := rr.r.Read()
	if errors.Is(err, io.EOF) {
		rr.finished = true
		return domain.Row{}, io.EOF
	}
	if err != nil {
		return domain.Row{}, err
	}
	rr.line++
	return domain.Row{
		Line:       rr.line,
		Identifier: field(record, rr.idCol),
		ImageURL:   field(record, rr.urlCol),
	}, nil
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
