package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/adamscao/certlink/internal/certificate"
)

// RequiredColumns must appear in the CSV header row.
var RequiredColumns = []string{
	certificate.FieldFullName,
	certificate.FieldCourseName,
	certificate.FieldCompletionDate,
}

// ReadCSV parses a header row followed by data rows. Header names and
// values are trimmed, blank rows are skipped, and a short row leaves its
// trailing columns absent. A header without every required column is a
// validation error naming the missing columns.
func ReadCSV(r io.Reader) ([]certificate.Fields, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	if err := checkColumns(header); err != nil {
		return nil, err
	}

	var rows []certificate.Fields
	for {
		values, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", len(rows)+1, err)
		}
		if isBlank(values) {
			continue
		}

		fields := make(certificate.Fields, len(header))
		for i, name := range header {
			if i < len(values) {
				fields[name] = strings.TrimSpace(values[i])
			}
		}
		rows = append(rows, fields)
	}

	return rows, nil
}

func checkColumns(header []string) error {
	present := make(map[string]bool, len(header))
	for _, name := range header {
		present[name] = true
	}

	var missing []string
	for _, name := range RequiredColumns {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return &certificate.Error{
		Kind:    certificate.KindValidation,
		Field:   missing[0],
		Message: "missing columns: " + strings.Join(missing, ", "),
	}
}

func isBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
