package sources

import "collector/internal/etl"

// Deps are the capabilities the built-in pipelines need.
type Deps struct {
	HTTP     etl.HTTPFetcher
	Querier  etl.DBQuerier
	Executor etl.DBExecutor
}

// NewRegistry registers every built-in source kind.
func NewRegistry(d Deps) *etl.Registry {
	if d.HTTP == nil {
		d.HTTP = NewHTTPClient(DefaultHTTPTimeout)
	}
	return etl.NewRegistry(
		NewHTTP(d.HTTP, d.Executor),
		NewDatabase(d.Querier, d.Executor),
		NewJSONFile(d.Executor),
		NewCSVFile(d.Executor),
	)
}
