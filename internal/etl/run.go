package etl

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Run ────────────────────────────────────────────────────
// A Run is the stored definition of one source → destination flow.
// Each execution of it writes one RunLog.

// Trigger types.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

// Run holds the configuration for a single collection flow.
type Run struct {
	ID            string       `json:"id" yaml:"id,omitempty"`
	Name          string       `json:"name" yaml:"name"`
	SourceType    string       `json:"sourceType" yaml:"sourceType"`
	Source        SourceConfig `json:"source" yaml:"source"`
	Rules         RuleSet      `json:"rules,omitempty" yaml:"rules,omitempty"`
	StrictMapping bool         `json:"strictMapping,omitempty" yaml:"strictMapping,omitempty"`
	Flatten       *FlattenSpec `json:"flatten,omitempty" yaml:"flatten,omitempty"`
	Template      string       `json:"template" yaml:"template"`
	Paging        PagingPolicy `json:"paging" yaml:"paging,omitempty"`
	Destination   Destination  `json:"destination" yaml:"destination"`
	TriggerType   string       `json:"triggerType" yaml:"triggerType,omitempty"`     // "manual" | "schedule" | "file_watch"
	TriggerConfig string       `json:"triggerConfig" yaml:"triggerConfig,omitempty"` // cron expression or watch path
	Enabled       bool         `json:"enabled" yaml:"enabled"`
	LastRunAt     time.Time    `json:"lastRunAt" yaml:"-"`
	LastStatus    RunStatus    `json:"lastStatus" yaml:"-"`
	LastError     string       `json:"lastError" yaml:"-"`
	CreatedAt     time.Time    `json:"createdAt" yaml:"-"`
	UpdatedAt     time.Time    `json:"updatedAt" yaml:"-"`
}

// SourceConfig addresses the data to collect. Locator is a URL for http,
// a connection id or DSN for database, and a file path for the file kinds.
// Locator, Body and Query may carry ${...} placeholders rendered per page.
type SourceConfig struct {
	Locator string            `json:"locator" yaml:"locator"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`
	Query   string            `json:"query,omitempty" yaml:"query,omitempty"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Option returns an adapter-specific option or def when unset.
func (c SourceConfig) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Destination is where rendered statements are executed.
// An empty Locator renders without executing.
type Destination struct {
	Locator string `json:"locator" yaml:"locator"`
	Table   string `json:"table,omitempty" yaml:"table,omitempty"`
}

// FlattenSpec linearizes a parent/children tree found at ListPath.
type FlattenSpec struct {
	ListPath      string `json:"listPath" yaml:"listPath"`
	ChildrenField string `json:"childrenField" yaml:"childrenField"`
	IDField       string `json:"idField" yaml:"idField"`
}

// PagingPolicy governs repeated fetches within one execution.
type PagingPolicy struct {
	Enabled             bool   `json:"enabled" yaml:"enabled"`
	MaxResultCount      int    `json:"maxResultCount,omitempty" yaml:"maxResultCount,omitempty"`
	MaxRequestCount     int    `json:"maxRequestCount,omitempty" yaml:"maxRequestCount,omitempty"`
	ResultListFieldPath string `json:"resultListFieldPath,omitempty" yaml:"resultListFieldPath,omitempty"`
	Counter             string `json:"counter,omitempty" yaml:"counter,omitempty"`     // default "page"
	StartPage           int    `json:"startPage,omitempty" yaml:"startPage,omitempty"` // default 1
}

// CounterName returns the placeholder name of the page counter.
func (p PagingPolicy) CounterName() string {
	if p.Counter == "" {
		return "page"
	}
	return p.Counter
}

// FirstPage returns the counter value of the first request.
func (p PagingPolicy) FirstPage() int {
	if p.StartPage == 0 {
		return 1
	}
	return p.StartPage
}

// Validate reports configuration problems that make paging impossible.
func (p PagingPolicy) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.ResultListFieldPath == "" {
		return fmt.Errorf("%w: paging requires resultListFieldPath", ErrConfiguration)
	}
	if p.MaxRequestCount <= 0 {
		return fmt.Errorf("%w: paging requires maxRequestCount > 0", ErrConfiguration)
	}
	return nil
}

// MapOptions returns the mapping options the run asks for.
func (r *Run) MapOptions() []MapOption {
	if r.StrictMapping {
		return []MapOption{Strict()}
	}
	return nil
}

// Validate checks the parts of a run the collector cannot recover from.
func (r *Run) Validate() error {
	if r.SourceType == "" {
		return fmt.Errorf("%w: sourceType is required", ErrConfiguration)
	}
	if r.Template == "" {
		return fmt.Errorf("%w: template is required", ErrConfiguration)
	}
	if r.Flatten != nil && (r.Flatten.ChildrenField == "" || r.Flatten.IDField == "") {
		return fmt.Errorf("%w: flatten requires childrenField and idField", ErrConfiguration)
	}
	return r.Paging.Validate()
}

// ── Rules ──────────────────────────────────────────────────

// Rule copies the value at Source into the new document at Target.
// It is written as a two-element array: ["data#a", "res#aa"].
type Rule struct {
	Source string
	Target string
}

// RuleSet is applied in order.
type RuleSet []Rule

func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{r.Source, r.Target})
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("rule: %w", err)
	}
	return r.fromPair(pair)
}

func (r Rule) MarshalYAML() (any, error) {
	return []string{r.Source, r.Target}, nil
}

func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var pair []string
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("rule: %w", err)
	}
	return r.fromPair(pair)
}

func (r *Rule) fromPair(pair []string) error {
	if len(pair) != 2 {
		return fmt.Errorf("%w: rule must be [source, target], got %d elements", ErrConfiguration, len(pair))
	}
	r.Source, r.Target = pair[0], pair[1]
	return nil
}

// ── Loading ────────────────────────────────────────────────

// ParseRun decodes a run definition. YAML is a superset of JSON, so both work.
func ParseRun(data []byte) (*Run, error) {
	var run Run
	if err := yaml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse run: %w", err)
	}
	if run.TriggerType == "" {
		run.TriggerType = TriggerManual
	}
	return &run, nil
}

// LoadRun reads a run definition file.
func LoadRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	return ParseRun(data)
}
