package model

// ResultWriter persists reducer output.
type ResultWriter interface {
	Reset() error
	WriteDataset(result DatasetResult) error
	DeleteDataset(dataset string) error
}

// ResultQuerier provides the aggregate queries used for reporting.
type ResultQuerier interface {
	CountWinsByModel(dataset string) (map[Model]int64, error)
	Values(q ValueQuery) ([]Score, error)
	Wins(dataset string) ([]WinRecord, error)
	ListDatasets() ([]string, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
	TableColumns() (map[string][]ColumnInfo, error)
}

// ResultReader is the unified read contract for read surfaces (HTTP and CLI).
type ResultReader interface {
	ResultQuerier
	SchemaQuerier
}

// ColumnInfo describes one column of a store table.
type ColumnInfo struct {
	Column string `json:"column"`
	Type   string `json:"type"`
}
