package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"collector/internal/document"
)

// ── Pipeline ───────────────────────────────────────────────
// A Pipeline receives raw documents from one kind of source, reshapes them,
// and delivers rendered statements. Implementations live in etl/sources/,
// one file per kind.

// ConfigField describes a single configuration input for a source kind.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "select" | "textarea" | "password" | "file"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // for "select" type
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// SourceSpec describes a source kind and the fields its SourceConfig uses.
type SourceSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Delivery is the outcome of Deliver.
type Delivery struct {
	Statements []string `json:"statements"`
	Executed   bool     `json:"executed"`
	Failed     int      `json:"failed"`
	Errors     []error  `json:"-"`
}

// Pipeline is the interface every source kind implements.
type Pipeline interface {
	// Spec returns metadata about this source kind.
	Spec() SourceSpec

	// Receive performs the network/database call for one request.
	Receive(ctx context.Context, src SourceConfig) (document.Value, error)

	// Transform maps raw with rules, then flattens when flatten is set.
	Transform(raw document.Value, rules RuleSet, flatten *FlattenSpec, opts ...MapOption) (document.Value, error)

	// Deliver renders template against payload. Statements are executed
	// when dest has a locator.
	Deliver(ctx context.Context, payload document.Value, template string, dest *Destination) (Delivery, error)
}

// ── Base Pipeline ──────────────────────────────────────────
// Transform and Deliver are the same for every kind; adapters embed Base.

// Base implements Transform and Deliver.
type Base struct {
	Executor DBExecutor
}

func (Base) Transform(raw document.Value, rules RuleSet, flatten *FlattenSpec, opts ...MapOption) (document.Value, error) {
	out := raw
	if len(rules) > 0 {
		mapped, err := Map(raw, rules, opts...)
		if err != nil {
			return document.Value{}, fmt.Errorf("map: %w", err)
		}
		out = mapped
	}
	if flatten == nil {
		return out, nil
	}
	records, err := Flatten(out, *flatten)
	if err != nil {
		return document.Value{}, fmt.Errorf("flatten: %w", err)
	}
	return placeRecords(out, flatten.ListPath, records), nil
}

func (b Base) Deliver(ctx context.Context, payload document.Value, template string, dest *Destination) (Delivery, error) {
	table := ""
	if dest != nil {
		table = dest.Table
	}
	stmts, err := RenderTable(template, table, payload)
	if err != nil {
		return Delivery{}, fmt.Errorf("render: %w", err)
	}
	d := Delivery{Statements: stmts}
	if dest == nil || dest.Locator == "" || len(stmts) == 0 {
		return d, nil
	}
	if b.Executor == nil {
		return d, fmt.Errorf("%w: no executor for destination %q", ErrConfiguration, dest.Locator)
	}
	errs, err := b.Executor.ExecuteDB(ctx, dest.Locator, stmts)
	if err != nil {
		return d, fmt.Errorf("execute: %w", err)
	}
	d.Executed = true
	for _, e := range errs {
		if e != nil {
			d.Failed++
			d.Errors = append(d.Errors, e)
		}
	}
	return d, nil
}

// ── Registry ───────────────────────────────────────────────

// Registry maps a source kind to its Pipeline.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]Pipeline
}

func NewRegistry(ps ...Pipeline) *Registry {
	r := &Registry{pipelines: map[string]Pipeline{}}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the pipeline for its spec type.
func (r *Registry) Register(p Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[p.Spec().Type] = p
}

// Get returns the pipeline for kind.
func (r *Registry) Get(kind string) (Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown source type %q", ErrConfiguration, kind)
	}
	return p, nil
}

// List returns the specs of all registered pipelines, sorted by type.
func (r *Registry) List() []SourceSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]SourceSpec, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		specs = append(specs, p.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}
