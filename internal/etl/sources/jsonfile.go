package sources

import (
	"context"
	"fmt"
	"os"

	"collector/internal/document"
	"collector/internal/etl"
)

// ── JSON File Source ────────────────────────────────────────
// Reads a local JSON file as the raw document.

type jsonFilePipeline struct {
	etl.Base
}

// NewJSONFile returns the "json_file" pipeline.
func NewJSONFile(executor etl.DBExecutor) etl.Pipeline {
	return &jsonFilePipeline{Base: etl.Base{Executor: executor}}
}

func (s *jsonFilePipeline) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "json_file",
		Label: "JSON File",
		ConfigFields: []etl.ConfigField{
			{Key: "locator", Label: "File Path", Type: "file", Required: true, Help: "Path to the JSON file; may use ${page} to read numbered files"},
		},
	}
}

func (s *jsonFilePipeline) Receive(_ context.Context, src etl.SourceConfig) (document.Value, error) {
	if src.Locator == "" {
		return document.Value{}, fmt.Errorf("%w: file path is required", etl.ErrConfiguration)
	}
	data, err := os.ReadFile(src.Locator)
	if err != nil {
		return document.Value{}, fmt.Errorf("%w: read file: %v", etl.ErrConnectivity, err)
	}
	doc, err := document.Parse(data)
	if err != nil {
		return document.Value{}, fmt.Errorf("%w: %s: %v", etl.ErrDecode, src.Locator, err)
	}
	return doc, nil
}
