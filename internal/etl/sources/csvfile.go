package sources

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"collector/internal/document"
	"collector/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads a local CSV file into {"rows": [...]}, one object per line.
// Values stay strings unless the inferTypes option is set.

type csvFilePipeline struct {
	etl.Base
}

// NewCSVFile returns the "csv_file" pipeline.
func NewCSVFile(executor etl.DBExecutor) etl.Pipeline {
	return &csvFilePipeline{Base: etl.Base{Executor: executor}}
}

func (s *csvFilePipeline) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []etl.ConfigField{
			{Key: "locator", Label: "File Path", Type: "file", Required: true, Help: "Path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Options: []string{"true", "false"}, Default: "true", Help: "Whether the first row contains column names"},
			{Key: "inferTypes", Label: "Infer Types", Type: "select", Options: []string{"true", "false"}, Default: "false", Help: "Turn numeric and boolean cells into numbers and booleans"},
		},
	}
}

func (s *csvFilePipeline) Receive(_ context.Context, src etl.SourceConfig) (document.Value, error) {
	headers, rows, err := readCSVFile(src)
	if err != nil {
		return document.Value{}, err
	}
	infer := strings.EqualFold(src.Option("inferTypes", "false"), "true")

	items := make([]document.Value, 0, len(rows))
	for _, row := range rows {
		rec := document.ObjectValue()
		for j, h := range headers {
			if j >= len(row) {
				break
			}
			if infer {
				rec.Set(h, inferCSVValue(row[j]))
			} else {
				rec.Set(h, document.StringValue(row[j]))
			}
		}
		items = append(items, rec)
	}
	return document.ObjectValue(document.F(RowsField, document.ArrayValue(items...))), nil
}

func readCSVFile(src etl.SourceConfig) ([]string, [][]string, error) {
	if src.Locator == "" {
		return nil, nil, fmt.Errorf("%w: file path is required", etl.ErrConfiguration)
	}

	f, err := os.Open(src.Locator)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open file: %v", etl.ErrConnectivity, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delim := src.Option("delimiter", ","); len(delim) > 0 {
		reader.Comma = rune(delim[0])
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse csv: %v", etl.ErrDecode, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	if !strings.EqualFold(src.Option("hasHeader", "true"), "false") {
		return records[0], records[1:], nil
	}
	// Generate column names: col_1, col_2, ...
	headers := make([]string, len(records[0]))
	for i := range headers {
		headers[i] = fmt.Sprintf("col_%d", i+1)
	}
	return headers, records, nil
}

// inferCSVValue parses a cell as a number or bool when it looks like one.
func inferCSVValue(s string) document.Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return document.NullValue()
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil && json.Valid([]byte(s)) {
		return document.FromAny(json.Number(s))
	}
	switch strings.ToLower(s) {
	case "true", "yes":
		return document.BoolValue(true)
	case "false", "no":
		return document.BoolValue(false)
	}
	return document.StringValue(s)
}
