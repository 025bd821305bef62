package etl

import (
	"context"
	"fmt"

	"collector/internal/document"
)

// Preview is one page of a run taken through receive, transform and render
// without executing anything or writing a run log.
type Preview struct {
	Page       int            `json:"page"`
	Request    SourceConfig   `json:"request"`
	Raw        document.Value `json:"raw"`
	Payload    document.Value `json:"payload"`
	Statements []string       `json:"statements"`
	HasNext    bool           `json:"hasNext"`
}

// Preview renders a single page of run. page <= 0 selects the first page.
// Failures are returned as-is; nothing is retried.
func (c *Collector) Preview(ctx context.Context, run *Run, page int) (*Preview, error) {
	if err := run.Validate(); err != nil {
		return nil, err
	}
	p, err := c.pipelines.Get(run.SourceType)
	if err != nil {
		return nil, err
	}
	if page <= 0 {
		page = run.Paging.FirstPage()
	}

	req, err := newPageRenderer(run).renderRequest(run.Source, page)
	if err != nil {
		return nil, err
	}
	raw, err := p.Receive(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	payload, err := p.Transform(raw, run.Rules, run.Flatten, run.MapOptions()...)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	d, err := p.Deliver(ctx, payload, run.Template, &Destination{Table: run.Destination.Table})
	if err != nil {
		return nil, err
	}

	out := &Preview{Page: page, Request: req, Raw: raw, Payload: payload, Statements: d.Statements}
	if run.Paging.Enabled {
		out.HasNext, _ = hasNextPage(raw, run.Paging.ResultListFieldPath)
	}
	return out, nil
}

// Sources lists the registered pipeline kinds.
func (c *Collector) Sources() []SourceSpec {
	return c.pipelines.List()
}
