package model

import "context"

// FlowQuerier provides read-only queries on the flow table.
type FlowQuerier interface {
	FilteredFlows(ctx context.Context, f FlowFilter) (*FlowSample, error)
	DatasetInfo() (*DatasetInfo, error)
	LoadHistory(limit int) ([]LoadRecord, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// FlowReader is the unified read contract of the store.
type FlowReader interface {
	FlowQuerier
	SchemaQuerier
}

// ViewComputer turns a selection into a dashboard view.
type ViewComputer interface {
	Info() *DatasetInfo
	ComputeView(ctx context.Context, sel Selection) (*View, error)
}
