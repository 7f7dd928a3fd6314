package syncagent

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Expected bulk upload columns. Header matching is case-insensitive and
// order-independent; unknown columns are ignored.
const (
	csvColHostname       = "hostname"
	csvColOwnership      = "ownership"
	csvColBusinessImpact = "business impact"
	csvColCriticality    = "criticality"
)

// ReadImportRows parses the tabular bulk-upload format into raw rows for the
// Importer. The first record must be the header; row-level validation happens
// later, so malformed cell values pass through untouched.
func ReadImportRows(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Rows with missing trailing cells are tolerated; validation rejects them.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("import: empty file")
	}
	if err != nil {
		return nil, errors.Wrap(err, "import: read header failed")
	}
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	if _, ok := columns[csvColHostname]; !ok {
		return nil, errors.New("import: missing Hostname column")
	}

	cell := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var rows []ImportRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "import: read row %d failed", len(rows)+1)
		}
		rows = append(rows, ImportRow{
			Hostname:       cell(record, csvColHostname),
			Ownership:      cell(record, csvColOwnership),
			BusinessImpact: cell(record, csvColBusinessImpact),
			Criticality:    cell(record, csvColCriticality),
		})
	}
}
